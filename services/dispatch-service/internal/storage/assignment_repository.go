package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldserve/dispatch/libs/db"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/assign"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/availability"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

type AssignmentRepository struct {
	pool *db.Pool
}

func NewAssignmentRepository(pool *db.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

func (r *AssignmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// TxClaimer binds assignment claims to a caller-owned transaction so an
// offered event can be written to the outbox atomically with the claim.
type TxClaimer struct {
	tx pgx.Tx
}

func (r *AssignmentRepository) WithTx(tx pgx.Tx) TxClaimer {
	return TxClaimer{tx: tx}
}

// Claim inserts a pending assignment. The exclusion constraint rejects the
// insert when the resource already holds an overlapping non-terminal
// assignment; that conflict maps to assign.ErrResourceBusy so the assigner
// can fall through to the next candidate.
//
// The insert runs inside a savepoint (a nested pgx transaction). A 23P01
// aborts the server-side transaction up to the savepoint only; rolling the
// savepoint back keeps the caller's transaction usable for the next
// candidate's claim and the outbox write.
func (c TxClaimer) Claim(ctx context.Context, a model.Assignment, window availability.Interval) error {
	sp, err := c.tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx, `
		INSERT INTO assignments (id, job_id, resource_id, status, job_window)
		VALUES ($1, $2, $3, $4, tstzrange($5, $6, '[)'))
	`, a.ID, a.JobID, a.ResourceID, a.Status, window.Start, window.End)
	if err != nil {
		_ = sp.Rollback(ctx)
		if isExclusionViolation(err) {
			return fmt.Errorf("resource %s: %w", a.ResourceID, assign.ErrResourceBusy)
		}
		return err
	}
	return sp.Commit(ctx)
}

// ListForJob returns the append-only assignment history for a job, oldest
// first.
func (r *AssignmentRepository) ListForJob(ctx context.Context, jobID string) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, resource_id, status, created_at, updated_at
		FROM assignments
		WHERE job_id = $1
		ORDER BY created_at, id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.JobID, &a.ResourceID, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return history, nil
}

// ErrNotPending means the assignment already left the pending state; the
// accept/decline response arrived late or twice.
var ErrNotPending = errors.New("assignment is not pending")

// Respond moves a pending assignment to accepted or declined. The pending
// guard keeps history append-only: a terminal row never changes again.
func (r *AssignmentRepository) Respond(ctx context.Context, tx pgx.Tx, assignmentID, status string) (model.Assignment, error) {
	var a model.Assignment
	err := tx.QueryRow(ctx, `
		UPDATE assignments
		SET status = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, job_id, resource_id, status, created_at, updated_at
	`, assignmentID, status).Scan(&a.ID, &a.JobID, &a.ResourceID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Assignment{}, ErrNotPending
	}
	if err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

// isExclusionViolation reports SQLSTATE 23P01, raised by the
// assignments_resource_window_excl constraint.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
