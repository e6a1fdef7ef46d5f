package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oroshi/backoffice/internal/task"
)

// PushPayload is one push notification to a device token.
type PushPayload struct {
	DeviceToken string `json:"device_token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// EmailPayload is one email to a recipient address.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func registerNotification(registry *task.Registry) error {
	register := []struct {
		kind    string
		handler task.Handler
	}{
		{task.KindSendPush, task.HandlerFor(queuePush)},
		{task.KindSendEmail, task.HandlerFor(queueEmail)},
	}
	for _, r := range register {
		if err := registry.Register(r.kind, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// queuePush writes the notification to the outbox the gateway drains.
func queuePush(ctx context.Context, tx *sql.Tx, scope task.Scope, body PushPayload) error {
	if body.DeviceToken == "" {
		return fmt.Errorf("push notification missing device token")
	}
	return insertNotification(ctx, tx, "push", body.DeviceToken, body.Title, body.Body)
}

func queueEmail(ctx context.Context, tx *sql.Tx, scope task.Scope, body EmailPayload) error {
	if body.To == "" {
		return fmt.Errorf("email missing recipient")
	}
	return insertNotification(ctx, tx, "email", body.To, body.Subject, body.Body)
}

func insertNotification(ctx context.Context, tx *sql.Tx, channel, recipient, title, body string) error {
	query := `
		INSERT INTO notification_outbox (channel, recipient, title, body, queued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query, channel, recipient, title, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to queue %s notification: %w", channel, err)
	}
	return nil
}
