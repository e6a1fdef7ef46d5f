package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oroshi/backoffice/internal/task"
)

// SweepPayload is the trigger record of a status sweep. Sweeps derive
// everything from the clock, so it carries nothing.
type SweepPayload struct{}

func registerScheduled(registry *task.Registry) error {
	register := []struct {
		kind    string
		handler task.Handler
	}{
		{task.KindSaleStatusSweep, task.HandlerFor(sweepSaleStatuses)},
		{task.KindBundleStatusSweep, task.HandlerFor(sweepBundleStatuses)},
		{task.KindReservationStatusSweep, task.HandlerFor(sweepReservationStatuses)},
	}
	for _, r := range register {
		if err := registry.Register(r.kind, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// sweepSaleStatuses opens sales whose window has started and closes
// sales whose window has passed.
func sweepSaleStatuses(ctx context.Context, tx *sql.Tx, scope task.Scope, body SweepPayload) error {
	now := time.Now().UTC()

	open := `
		UPDATE sales SET status = 'active', updated_at = $1
		WHERE status = 'scheduled' AND starts_at <= $1
	`
	if _, err := tx.ExecContext(ctx, open, now); err != nil {
		return fmt.Errorf("failed to open due sales: %w", err)
	}

	end := `
		UPDATE sales SET status = 'ended', updated_at = $1
		WHERE status = 'active' AND ends_at <= $1
	`
	if _, err := tx.ExecContext(ctx, end, now); err != nil {
		return fmt.Errorf("failed to close expired sales: %w", err)
	}
	return nil
}

func sweepBundleStatuses(ctx context.Context, tx *sql.Tx, scope task.Scope, body SweepPayload) error {
	now := time.Now().UTC()

	query := `
		UPDATE bundles SET status = 'ended', updated_at = $1
		WHERE status = 'active' AND ends_at <= $1
	`
	if _, err := tx.ExecContext(ctx, query, now); err != nil {
		return fmt.Errorf("failed to close expired bundles: %w", err)
	}
	return nil
}

func sweepReservationStatuses(ctx context.Context, tx *sql.Tx, scope task.Scope, body SweepPayload) error {
	now := time.Now().UTC()

	query := `
		UPDATE reservations SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at <= $1
	`
	if _, err := tx.ExecContext(ctx, query, now); err != nil {
		return fmt.Errorf("failed to expire stale reservations: %w", err)
	}
	return nil
}
