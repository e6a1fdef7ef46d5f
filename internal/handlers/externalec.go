package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oroshi/backoffice/internal/task"
)

// StockSyncPayload queues one stock value for a marketplace listing.
type StockSyncPayload struct {
	ItemID int64 `json:"item_id"`
	Stock  int64 `json:"stock"`
}

// PriceSyncPayload queues one price value for a marketplace listing.
type PriceSyncPayload struct {
	ItemID int64 `json:"item_id"`
	Price  int64 `json:"price"`
}

// OrderPullPayload requests an order import for one time window.
type OrderPullPayload struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func registerExternalEC(registry *task.Registry) error {
	register := []struct {
		kind    string
		handler task.Handler
	}{
		{task.KindUpdateStock, task.HandlerFor(queueStockSync)},
		{task.KindUpdatePrice, task.HandlerFor(queuePriceSync)},
		{task.KindPullOrders, task.HandlerFor(queueOrderPull)},
	}
	for _, r := range register {
		if err := registry.Register(r.kind, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// queueStockSync records the target stock in the sync outbox. The
// marketplace integration drains the outbox per store, which is why
// these kinds serialize on the store ordering group.
func queueStockSync(ctx context.Context, tx *sql.Tx, scope task.Scope, body StockSyncPayload) error {
	return insertSync(ctx, tx, scope, "stock", body.ItemID, body.Stock)
}

func queuePriceSync(ctx context.Context, tx *sql.Tx, scope task.Scope, body PriceSyncPayload) error {
	return insertSync(ctx, tx, scope, "price", body.ItemID, body.Price)
}

func insertSync(ctx context.Context, tx *sql.Tx, scope task.Scope, field string, itemID, value int64) error {
	if scope.StoreID == nil {
		return fmt.Errorf("%s sync requires a store scope", field)
	}

	query := `
		INSERT INTO external_ec_syncs (store_id, item_id, field, value, queued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query, *scope.StoreID, itemID, field, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to queue %s sync for item %d: %w", field, itemID, err)
	}
	return nil
}

func queueOrderPull(ctx context.Context, tx *sql.Tx, scope task.Scope, body OrderPullPayload) error {
	if scope.StoreID == nil {
		return fmt.Errorf("order pull requires a store scope")
	}
	if !body.To.After(body.From) {
		return fmt.Errorf("order pull window is empty: %s..%s", body.From, body.To)
	}

	query := `
		INSERT INTO external_ec_order_pulls (store_id, window_from, window_to, requested_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, query, *scope.StoreID, body.From, body.To, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to queue order pull: %w", err)
	}
	return nil
}
