// Package handlers wires the stock kind handlers for each worker. Every
// handler performs the local database bookkeeping of its operation;
// outbound effects (marketplace calls, push delivery) are drained from
// the written rows by separate integrations.
package handlers

import (
	"fmt"

	"github.com/oroshi/backoffice/internal/task"
)

// Register installs the handlers of one worker into the registry and
// validates the result against the catalog, so a kind added to the
// catalog without a handler fails at startup rather than at delivery.
func Register(registry *task.Registry, catalog *task.Catalog, worker string) error {
	var err error
	switch worker {
	case task.WorkerItem:
		err = registerItem(registry)
	case task.WorkerExternalEC:
		err = registerExternalEC(registry)
	case task.WorkerScheduled:
		err = registerScheduled(registry)
	case task.WorkerNotification:
		err = registerNotification(registry)
	default:
		return fmt.Errorf("unknown worker %q", worker)
	}
	if err != nil {
		return fmt.Errorf("failed to register handlers for worker %q: %w", worker, err)
	}

	return registry.ValidateAgainst(catalog, worker)
}
