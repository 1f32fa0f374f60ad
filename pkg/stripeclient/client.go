/**
 * @description
 * This package provides a client for the Stripe REST API, covering the three
 * capabilities the settlement engine needs: charge a customer's card, move
 * funds to a connected account, and list a customer's cards. It encapsulates
 * authenticated form-encoded requests and response parsing.
 *
 * Customer/account provisioning and card tokenization live elsewhere; this
 * client only consumes references already on file.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client. Every call carries the
// HTTPClient timeout so a hung gateway cannot stall a settlement sweep.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChargeResult is the subset of a payment intent the ledger records.
type ChargeResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	LatestCharge string `json:"latest_charge"`
	Raw          string `json:"-"`
}

// TransferResult is the subset of a transfer the ledger records.
type TransferResult struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Raw         string `json:"-"`
}

// Card is a stored payment method on a customer.
type Card struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int    `json:"exp_month"`
	ExpYear   int    `json:"exp_year"`
	IsDefault bool   `json:"default"`
}

// PaymentMethods is a customer's cards on file.
type PaymentMethods struct {
	Cards []Card `json:"cards"`
}

// APIError represents an error returned by the Stripe API.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Raw        string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("stripe api error: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe api error: status %d", e.StatusCode)
}

// CreatePaymentIntent charges a customer's card off-session and confirms the
// intent immediately. Amount is in minor units (pence).
func (c *Client) CreatePaymentIntent(ctx context.Context, customerID, paymentMethodID string, amountMinor int64, currency, tag string) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	form.Set("customer", customerID)
	form.Set("payment_method", paymentMethodID)
	form.Set("off_session", "true")
	form.Set("confirm", "true")
	form.Set("metadata[tag]", tag)

	body, err := c.doRequest(ctx, http.MethodPost, "/payment_intents", form)
	if err != nil {
		return nil, err
	}

	var result ChargeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent response: %w", err)
	}
	result.Raw = string(body)

	return &result, nil
}

// CreateTransfer moves funds to a connected account. Amount is in minor
// units (pence).
func (c *Client) CreateTransfer(ctx context.Context, destinationAccountID string, amountMinor int64, currency string) (*TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	form.Set("destination", destinationAccountID)

	body, err := c.doRequest(ctx, http.MethodPost, "/transfers", form)
	if err != nil {
		return nil, err
	}

	var result TransferResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transfer response: %w", err)
	}
	result.Raw = string(body)

	return &result, nil
}

type paymentMethodList struct {
	Data []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Card struct {
			Brand    string `json:"brand"`
			Last4    string `json:"last4"`
			ExpMonth int    `json:"exp_month"`
			ExpYear  int    `json:"exp_year"`
		} `json:"card"`
	} `json:"data"`
}

type customerResponse struct {
	ID              string `json:"id"`
	InvoiceSettings struct {
		DefaultPaymentMethod string `json:"default_payment_method"`
	} `json:"invoice_settings"`
}

// ListPaymentMethods returns a customer's cards with the default flagged.
func (c *Client) ListPaymentMethods(ctx context.Context, customerID string) (*PaymentMethods, error) {
	custBody, err := c.doRequest(ctx, http.MethodGet, "/customers/"+customerID, nil)
	if err != nil {
		return nil, err
	}
	var customer customerResponse
	if err := json.Unmarshal(custBody, &customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer response: %w", err)
	}

	form := url.Values{}
	form.Set("type", "card")
	form.Set("limit", "3")
	listBody, err := c.doRequest(ctx, http.MethodGet, "/customers/"+customerID+"/payment_methods?"+form.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var list paymentMethodList
	if err := json.Unmarshal(listBody, &list); err != nil {
		return nil, fmt.Errorf("failed to decode payment method list: %w", err)
	}

	methods := &PaymentMethods{}
	for _, pm := range list.Data {
		if pm.Type != "card" {
			continue
		}
		methods.Cards = append(methods.Cards, Card{
			ID:        pm.ID,
			Brand:     pm.Card.Brand,
			Last4:     pm.Card.Last4,
			ExpMonth:  pm.Card.ExpMonth,
			ExpYear:   pm.Card.ExpYear,
			IsDefault: pm.ID == customer.InvoiceSettings.DefaultPaymentMethod,
		})
	}

	return methods, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to stripe failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: string(body)}
		var wrapper struct {
			Error APIError `json:"error"`
		}
		if json.Unmarshal(body, &wrapper) == nil {
			apiErr.Type = wrapper.Error.Type
			apiErr.Code = wrapper.Error.Code
			apiErr.Message = wrapper.Error.Message
		}
		return nil, apiErr
	}

	return body, nil
}
