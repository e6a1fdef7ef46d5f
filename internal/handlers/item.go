package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oroshi/backoffice/internal/task"
)

// ItemPayload describes one catalog item for creation and update kinds.
type ItemPayload struct {
	ItemID int64  `json:"item_id,omitempty"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
}

// StockingPayload adjusts one item's stock by a signed delta.
type StockingPayload struct {
	ItemID int64 `json:"item_id"`
	Delta  int64 `json:"delta"`
}

// ProductPayload updates the sellable status of one item.
type ProductPayload struct {
	ItemID int64  `json:"item_id"`
	Status string `json:"status"`
}

func registerItem(registry *task.Registry) error {
	register := []struct {
		kind    string
		handler task.Handler
	}{
		{task.KindCreateItem, task.HandlerFor(createItem)},
		{task.KindUpdateItem, task.HandlerFor(updateItem)},
		{task.KindUpdateProduct, task.HandlerFor(updateProduct)},
		{task.KindStocking, task.HandlerFor(applyStocking)},
	}
	for _, r := range register {
		if err := registry.Register(r.kind, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func createItem(ctx context.Context, tx *sql.Tx, scope task.Scope, body ItemPayload) error {
	if scope.StoreID == nil {
		return fmt.Errorf("create-item requires a store scope")
	}

	query := `
		INSERT INTO items (store_id, code, name, price, stock, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 'draft', $5, $5)
	`
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, query, *scope.StoreID, body.Code, body.Name, body.Price, now); err != nil {
		return fmt.Errorf("failed to create item %q: %w", body.Code, err)
	}
	return nil
}

func updateItem(ctx context.Context, tx *sql.Tx, scope task.Scope, body ItemPayload) error {
	query := `
		UPDATE items
		SET code = $2, name = $3, price = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query, body.ItemID, body.Code, body.Name, body.Price, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", body.ItemID, err)
	}
	return requireRow(result, "item", body.ItemID)
}

func updateProduct(ctx context.Context, tx *sql.Tx, scope task.Scope, body ProductPayload) error {
	query := `UPDATE items SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, body.ItemID, body.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update product status for item %d: %w", body.ItemID, err)
	}
	return requireRow(result, "item", body.ItemID)
}

func applyStocking(ctx context.Context, tx *sql.Tx, scope task.Scope, body StockingPayload) error {
	query := `UPDATE items SET stock = stock + $2, updated_at = $3 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, body.ItemID, body.Delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to adjust stock for item %d: %w", body.ItemID, err)
	}
	return requireRow(result, "item", body.ItemID)
}

// requireRow turns a zero-row update into an error so the item is
// recorded as failed instead of silently skipped.
func requireRow(result sql.Result, entity string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %d not found", entity, id)
	}
	return nil
}
