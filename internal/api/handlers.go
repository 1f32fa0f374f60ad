/**
 * @description
 * HTTP handlers for pod lifecycle, invitation join/decline, manual
 * subscription payment, and the internal job triggers.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shahzaibimran94/save-squad/internal/app"
	"github.com/shahzaibimran94/save-squad/internal/domain"
	"github.com/shahzaibimran94/save-squad/internal/store"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) handleCreatePod(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req app.CreatePodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pod, err := h.service.CreatePod(r.Context(), userID, req)
	if err != nil {
		respondWithServiceError(w, "creating pod", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, pod)
}

func (h *Handler) handleListPods(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pods, err := h.service.GetUserPods(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, "listing pods", err)
		return
	}

	respondWithJSON(w, http.StatusOK, pods)
}

func (h *Handler) handleListMemberPods(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pods, err := h.service.GetMemberPods(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, "listing member pods", err)
		return
	}

	respondWithJSON(w, http.StatusOK, pods)
}

func (h *Handler) handleUpdatePod(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	podID := chi.URLParam(r, "id")
	var req app.CreatePodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pod, err := h.service.UpdatePod(r.Context(), userID, podID, req)
	if err != nil {
		respondWithServiceError(w, "updating pod", err)
		return
	}

	respondWithJSON(w, http.StatusOK, pod)
}

func (h *Handler) handleJoinPod(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if err := h.service.JoinPod(r.Context(), token); err != nil {
		respondWithServiceError(w, "joining pod", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleDeclinePod(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	podID := chi.URLParam(r, "id")
	if err := h.service.DeclinePod(r.Context(), podID, userID); err != nil {
		respondWithServiceError(w, "declining pod", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handlePaySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	txn, err := h.service.PaySubscriptionManually(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, "manual subscription payment", err)
		return
	}

	respondWithJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleRunSettlement(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunDailyPodSettlement(r.Context()); err != nil {
		log.Printf("Error running pod settlement: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) handleRunBilling(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunDailySubscriptionBilling(r.Context()); err != nil {
		log.Printf("Error running subscription billing: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) handleRunRetries(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunDailySubscriptionRetries(r.Context()); err != nil {
		log.Printf("Error running subscription retries: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// respondWithServiceError maps service errors onto HTTP statuses: validation
// problems are 400s, missing or state-invalid resources are 404s, and
// everything else is a 500.
func respondWithServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrAlreadyPaid):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, store.ErrSubscriptionNotFound):
		http.Error(w, "No active subscription", http.StatusForbidden)
	case errors.Is(err, store.ErrPodNotFound),
		errors.Is(err, store.ErrInvitationNotFound),
		errors.Is(err, store.ErrMemberNotFound),
		errors.Is(err, app.ErrPodNotJoinable):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		log.Printf("Error %s: %v", action, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
