/**
 * @description
 * HTTP router setup using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the service routes.
func NewRouter(h *Handler, jwtSecret, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Pod service is healthy"))
	})

	// Invitation links arrive out of band; the token is the credential.
	r.Get("/pods/join/{token}", h.handleJoinPod)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Post("/pods", h.handleCreatePod)
		r.Get("/pods", h.handleListPods)
		r.Get("/pods/member", h.handleListMemberPods)
		r.Put("/pods/{id}", h.handleUpdatePod)
		r.Post("/pods/{id}/decline", h.handleDeclinePod)
		r.Post("/subscriptions/pay", h.handlePaySubscription)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/settlement/run", h.handleRunSettlement)
		r.Post("/billing/run", h.handleRunBilling)
		r.Post("/retries/run", h.handleRunRetries)
	})

	return r
}
