package stripeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreatePaymentIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_intents" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "10368" {
			t.Fatalf("expected amount 10368, got %q", got)
		}
		if got := r.PostForm.Get("customer"); got != "cus_123" {
			t.Fatalf("expected customer cus_123, got %q", got)
		}
		if got := r.PostForm.Get("off_session"); got != "true" {
			t.Fatalf("expected off_session charge, got %q", got)
		}
		if got := r.PostForm.Get("confirm"); got != "true" {
			t.Fatalf("expected confirmed intent, got %q", got)
		}
		if got := r.PostForm.Get("metadata[tag]"); got != "saving-pod" {
			t.Fatalf("expected saving-pod tag, got %q", got)
		}

		w.Write([]byte(`{"id":"pi_1","status":"succeeded","latest_charge":"ch_1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	result, err := client.CreatePaymentIntent(context.Background(), "cus_123", "pm_1", 10368, "gbp", "saving-pod")
	if err != nil {
		t.Fatalf("CreatePaymentIntent returned error: %v", err)
	}
	if result.ID != "pi_1" || result.Status != "succeeded" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Raw == "" {
		t.Fatal("expected raw response captured")
	}
}

func TestCreatePaymentIntentDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	_, err := client.CreatePaymentIntent(context.Background(), "cus_123", "pm_1", 10368, "gbp", "saving-pod")
	if err == nil {
		t.Fatal("expected decline error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "card_declined" {
		t.Fatalf("expected card_declined code, got %q", apiErr.Code)
	}
}

func TestCreateTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transfers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("destination"); got != "acct_9" {
			t.Fatalf("expected destination acct_9, got %q", got)
		}
		if got := r.PostForm.Get("amount"); got != "20000" {
			t.Fatalf("expected amount 20000, got %q", got)
		}

		w.Write([]byte(`{"id":"tr_1","destination":"acct_9"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	result, err := client.CreateTransfer(context.Background(), "acct_9", 20000, "gbp")
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}
	if result.ID != "tr_1" || result.Destination != "acct_9" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestListPaymentMethodsFlagsDefaultCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/cus_123":
			w.Write([]byte(`{"id":"cus_123","invoice_settings":{"default_payment_method":"pm_2"}}`))
		case "/customers/cus_123/payment_methods":
			w.Write([]byte(`{"data":[
				{"id":"pm_1","type":"card","card":{"brand":"visa","last4":"1111","exp_month":4,"exp_year":2028}},
				{"id":"pm_2","type":"card","card":{"brand":"mastercard","last4":"4242","exp_month":9,"exp_year":2029}},
				{"id":"pm_3","type":"link","card":{}}
			]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	methods, err := client.ListPaymentMethods(context.Background(), "cus_123")
	if err != nil {
		t.Fatalf("ListPaymentMethods returned error: %v", err)
	}

	// Non-card methods are dropped.
	if len(methods.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(methods.Cards))
	}
	for _, card := range methods.Cards {
		if card.IsDefault != (card.ID == "pm_2") {
			t.Fatalf("expected only pm_2 flagged default, got %+v", card)
		}
	}
	if methods.Cards[1].Last4 != "4242" {
		t.Fatalf("expected last4 4242, got %q", methods.Cards[1].Last4)
	}
}
