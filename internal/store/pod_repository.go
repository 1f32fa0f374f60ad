/**
 * @description
 * This file implements pod and pod-member persistence. Members live in
 * their own table keyed by pod id; membership transitions are row-level
 * updates guarded by the current status, and whole-list replacements bump
 * the pod's version column so concurrent accepts cannot be silently lost.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

const podColumns = `id, owner_id, amount, start_date, active, expired, version, created_at, updated_at`

const memberColumns = `id, pod_id, user_id, invitation_status, member_order, position,
       added_at, charged_at, transfer_at, transfered_at, pay_at, paid_at`

// CreatePod inserts a pod and its members in one transaction.
func (r *Repository) CreatePod(ctx context.Context, pod *domain.Pod) (*domain.Pod, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	podID := uuid.New().String()
	query := `
		INSERT INTO pods (id, owner_id, amount, start_date, active, expired)
		VALUES ($1, $2, $3, $4, TRUE, FALSE)
	`
	if _, err := tx.Exec(ctx, query, podID, pod.OwnerID, pod.Amount, pod.StartDate); err != nil {
		return nil, err
	}

	for i := range pod.Members {
		if err := insertMember(ctx, tx, podID, &pod.Members[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.GetPod(ctx, podID)
}

func insertMember(ctx context.Context, tx pgx.Tx, podID string, member *domain.PodMember) error {
	member.ID = uuid.New().String()
	member.PodID = podID
	query := `
		INSERT INTO pod_members (id, pod_id, user_id, invitation_status, member_order, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		member.ID, podID, member.UserID, member.InvitationStatus, member.Order, member.Position)
	return err
}

// GetPod fetches one pod with its members ordered by position.
func (r *Repository) GetPod(ctx context.Context, podID string) (*domain.Pod, error) {
	var pod domain.Pod
	query := `SELECT ` + podColumns + ` FROM pods WHERE id = $1`
	err := r.db.QueryRow(ctx, query, podID).Scan(
		&pod.ID, &pod.OwnerID, &pod.Amount, &pod.StartDate,
		&pod.Active, &pod.Expired, &pod.Version, &pod.CreatedAt, &pod.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPodNotFound
		}
		return nil, err
	}

	members, err := r.listMembers(ctx, podID)
	if err != nil {
		return nil, err
	}
	pod.Members = members

	return &pod, nil
}

func (r *Repository) listMembers(ctx context.Context, podID string) ([]domain.PodMember, error) {
	query := `SELECT ` + memberColumns + ` FROM pod_members WHERE pod_id = $1 ORDER BY position`
	rows, err := r.db.Query(ctx, query, podID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMembers(rows)
}

func scanMembers(rows pgx.Rows) ([]domain.PodMember, error) {
	var members []domain.PodMember
	for rows.Next() {
		var m domain.PodMember
		err := rows.Scan(
			&m.ID, &m.PodID, &m.UserID, &m.InvitationStatus, &m.Order, &m.Position,
			&m.AddedAt, &m.ChargedAt, &m.TransferAt, &m.TransferedAt, &m.PayAt, &m.PaidAt)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListUserPods returns a user's own non-expired pods, members included.
func (r *Repository) ListUserPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	query := `SELECT ` + podColumns + ` FROM pods WHERE owner_id = $1 AND expired = FALSE ORDER BY created_at`
	return r.queryPodsWithMembers(ctx, query, userID)
}

// ListMemberPods returns active pods where the user is a non-declined member.
func (r *Repository) ListMemberPods(ctx context.Context, userID string) ([]domain.Pod, error) {
	query := `
		SELECT ` + podColumns + `
		FROM pods p
		WHERE p.active = TRUE AND p.expired = FALSE
		  AND EXISTS (
			SELECT 1 FROM pod_members m
			WHERE m.pod_id = p.id AND m.user_id = $1 AND m.invitation_status <> 'declined'
		  )
		ORDER BY p.created_at
	`
	return r.queryPodsWithMembers(ctx, query, userID)
}

// ListPodsForSettlement returns every active, unexpired pod with members.
func (r *Repository) ListPodsForSettlement(ctx context.Context) ([]domain.Pod, error) {
	query := `SELECT ` + podColumns + ` FROM pods WHERE active = TRUE AND expired = FALSE ORDER BY created_at`
	return r.queryPodsWithMembers(ctx, query)
}

func (r *Repository) queryPodsWithMembers(ctx context.Context, query string, args ...any) ([]domain.Pod, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pods []domain.Pod
	for rows.Next() {
		var pod domain.Pod
		err := rows.Scan(
			&pod.ID, &pod.OwnerID, &pod.Amount, &pod.StartDate,
			&pod.Active, &pod.Expired, &pod.Version, &pod.CreatedAt, &pod.UpdatedAt)
		if err != nil {
			return nil, err
		}
		pods = append(pods, pod)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pods {
		members, err := r.listMembers(ctx, pods[i].ID)
		if err != nil {
			return nil, err
		}
		pods[i].Members = members
	}

	return pods, nil
}

// UpdatePodMembers replaces a pod's member list and amount under optimistic
// concurrency: the update only lands if the pod's version is unchanged
// since it was read, so it cannot clobber a concurrent invitation accept.
func (r *Repository) UpdatePodMembers(ctx context.Context, pod *domain.Pod, members []domain.PodMember) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE pods
		SET amount = $1, start_date = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
	`
	tag, err := tx.Exec(ctx, query, pod.Amount, pod.StartDate, pod.ID, pod.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pod %s: %w", pod.ID, ErrVersionConflict)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pod_members WHERE pod_id = $1`, pod.ID); err != nil {
		return err
	}
	for i := range members {
		if err := insertMember(ctx, tx, pod.ID, &members[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// MarkPodExpired closes a pod. Expiry is terminal.
func (r *Repository) MarkPodExpired(ctx context.Context, podID string) error {
	query := `UPDATE pods SET expired = TRUE, active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, podID)
	return err
}

// StampMemberCharged records that the member was charged this cycle.
func (r *Repository) StampMemberCharged(ctx context.Context, memberID string, chargedAt time.Time) error {
	query := `UPDATE pod_members SET charged_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, chargedAt, memberID)
	return err
}

// ScheduleMemberTransfer sets the cycle payee's transfer date.
func (r *Repository) ScheduleMemberTransfer(ctx context.Context, memberID string, transferAt time.Time) error {
	query := `UPDATE pod_members SET transfer_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, transferAt, memberID)
	return err
}

// StampMemberTransferred records the completed transfer and schedules the
// payout confirmation.
func (r *Repository) StampMemberTransferred(ctx context.Context, memberID string, transferedAt, payAt time.Time) error {
	query := `UPDATE pod_members SET transfered_at = $1, pay_at = $2 WHERE id = $3`
	_, err := r.db.Exec(ctx, query, transferedAt, payAt, memberID)
	return err
}

// StampMemberPaid marks the member's payout as settled.
func (r *Repository) StampMemberPaid(ctx context.Context, memberID string, paidAt time.Time) error {
	query := `UPDATE pod_members SET paid_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, paidAt, memberID)
	return err
}

// AcceptMember flips a pending member to accepted. The status guard makes
// the transition idempotent and safe against concurrent list rewrites.
func (r *Repository) AcceptMember(ctx context.Context, memberID string) error {
	query := `UPDATE pod_members SET invitation_status = 'accepted' WHERE id = $1 AND invitation_status = 'pending'`
	tag, err := r.db.Exec(ctx, query, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember deletes a member from a pod. Declining an invitation removes
// the member entirely rather than parking them in a declined state.
func (r *Repository) RemoveMember(ctx context.Context, podID, userID string) error {
	query := `DELETE FROM pod_members WHERE pod_id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, podID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// CreateInvitations inserts join tokens for pending members.
func (r *Repository) CreateInvitations(ctx context.Context, invitations []domain.PodInvitation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO pod_invitations (id, pod_id, member_id, token, expires_at, is_used, active)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`
	for i := range invitations {
		inv := &invitations[i]
		inv.ID = uuid.New().String()
		if _, err := tx.Exec(ctx, query, inv.ID, inv.PodID, inv.MemberID, inv.Token, inv.ExpiresAt, inv.Active); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ConsumeInvitation atomically claims an unused, unexpired token. A token
// that is unknown, already used or past its expiry is a not-found; the
// claim-in-update means a token can be consumed exactly once even under
// concurrent joins.
func (r *Repository) ConsumeInvitation(ctx context.Context, token string, now time.Time) (*domain.PodInvitation, error) {
	var inv domain.PodInvitation
	query := `
		UPDATE pod_invitations
		SET is_used = TRUE
		WHERE token = $1 AND is_used = FALSE AND active = TRUE AND expires_at >= $2
		RETURNING id, pod_id, member_id, token, expires_at, is_used, active, created_at
	`
	err := r.db.QueryRow(ctx, query, token, now).Scan(
		&inv.ID, &inv.PodID, &inv.MemberID, &inv.Token, &inv.ExpiresAt, &inv.IsUsed, &inv.Active, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return &inv, nil
}
