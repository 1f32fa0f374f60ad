/**
 * @description
 * Data access layer for the pod service. One Repository struct implements
 * the app layer's contract against PostgreSQL; the queries live in the
 * per-collection files alongside this one.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPodNotFound          = errors.New("pod not found")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrMemberNotFound       = errors.New("pod member not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomerNotFound     = errors.New("gateway customer not found")
	ErrVersionConflict      = errors.New("pod was modified concurrently")
)

// Repository handles database operations for pods, transactions,
// subscriptions and retries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}
