package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/step"
)

const deliveryColumns = `id, step, payload, codec, attempt, run_at, enqueued_at`

// Schedule persists a new delivery.
func (s *Store) Schedule(ctx context.Context, d *step.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepchain_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID.String(), d.Step, d.Payload, d.Codec, d.Attempt, d.RunAt, d.EnqueuedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return stepchain.ErrDeliveryExists
		}
		return fmt.Errorf("stepchain/postgres: schedule delivery: %w", err)
	}
	return nil
}

// ClaimDue atomically leases up to limit due deliveries, earliest first.
// Uses SELECT FOR UPDATE SKIP LOCKED so concurrent claimers never overlap.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*step.Delivery, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id, run_at AS due_at FROM stepchain_deliveries
			WHERE run_at <= $1
			ORDER BY run_at ASC, enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		), claimed AS (
			UPDATE stepchain_deliveries d
			SET attempt = d.attempt + 1, run_at = $3
			FROM due
			WHERE d.id = due.id
			RETURNING d.id, d.step, d.payload, d.codec, d.attempt, d.run_at, d.enqueued_at, due.due_at
		)
		SELECT `+deliveryColumns+` FROM claimed ORDER BY due_at ASC, enqueued_at ASC`,
		now, lim, now.Add(lease),
	)
	if err != nil {
		return nil, fmt.Errorf("stepchain/postgres: claim due: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// Ack removes a processed delivery.
func (s *Store) Ack(ctx context.Context, deliveryID id.DeliveryID) error {
	return s.remove(ctx, deliveryID, "ack")
}

// Cancel removes a delivery.
func (s *Store) Cancel(ctx context.Context, deliveryID id.DeliveryID) error {
	return s.remove(ctx, deliveryID, "cancel")
}

// Reschedule sets a delivery's RunAt.
func (s *Store) Reschedule(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stepchain_deliveries SET run_at = $2 WHERE id = $1`,
		deliveryID.String(), runAt,
	)
	if err != nil {
		return fmt.Errorf("stepchain/postgres: reschedule delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepchain.ErrDeliveryNotFound
	}
	return nil
}

// Release makes a claimed delivery due at runAt and uncounts its claim.
func (s *Store) Release(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stepchain_deliveries SET run_at = $2, attempt = GREATEST(attempt - 1, 0) WHERE id = $1`,
		deliveryID.String(), runAt,
	)
	if err != nil {
		return fmt.Errorf("stepchain/postgres: release delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepchain.ErrDeliveryNotFound
	}
	return nil
}

// Pending returns scheduled deliveries ordered by RunAt.
func (s *Store) Pending(ctx context.Context, opts step.ListOpts) ([]*step.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM stepchain_deliveries`
	args := []any{}
	if opts.Step != "" {
		args = append(args, opts.Step)
		query += fmt.Sprintf(" WHERE step = $%d", len(args))
	}
	query += " ORDER BY run_at ASC, enqueued_at ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stepchain/postgres: pending deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *Store) remove(ctx context.Context, deliveryID id.DeliveryID, op string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stepchain_deliveries WHERE id = $1`, deliveryID.String())
	if err != nil {
		return fmt.Errorf("stepchain/postgres: %s delivery: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return stepchain.ErrDeliveryNotFound
	}
	return nil
}

func scanDelivery(row pgx.Row) (*step.Delivery, error) {
	var (
		d     step.Delivery
		idStr string
	)
	err := row.Scan(&idStr, &d.Step, &d.Payload, &d.Codec, &d.Attempt, &d.RunAt, &d.EnqueuedAt)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDeliveryID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("stepchain/postgres: parse delivery id %q: %w", idStr, parseErr)
	}
	d.ID = parsedID
	d.RunAt = d.RunAt.UTC()
	d.EnqueuedAt = d.EnqueuedAt.UTC()
	return &d, nil
}

func collectDeliveries(rows pgx.Rows) ([]*step.Delivery, error) {
	var out []*step.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("stepchain/postgres: scan delivery row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stepchain/postgres: iterate delivery rows: %w", err)
	}
	return out, nil
}
