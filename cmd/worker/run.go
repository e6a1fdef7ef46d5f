package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oroshi/backoffice/internal/api"
	"github.com/oroshi/backoffice/internal/config"
	"github.com/oroshi/backoffice/internal/events"
	"github.com/oroshi/backoffice/internal/handlers"
	"github.com/oroshi/backoffice/internal/platform/postgres"
	"github.com/oroshi/backoffice/internal/platform/rabbitmq"
	"github.com/oroshi/backoffice/internal/platform/redis"
	"github.com/oroshi/backoffice/internal/store"
	"github.com/oroshi/backoffice/internal/sweep"
	"github.com/oroshi/backoffice/internal/task"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the worker process",
		Long: "Starts the chunk consumer for the configured worker, the delay " +
			"scheduler pump, the ledger read API, and, for the scheduled " +
			"worker, the recurring status sweeps.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}
			return runWorker(cfg, log)
		},
	}
}

func runWorker(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := cfg.Worker.Name
	catalog := task.DefaultCatalog()
	if !catalog.HasWorker(worker) {
		return fmt.Errorf("worker %q is not in the kind catalog", worker)
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// One transport queue per catalog worker so the publisher, sweeps
	// and the delay pump can dispatch to any of them; this process
	// consumes only its own.
	queues := make(map[string]task.Dispatcher, len(cfg.Queue.Endpoints))
	var ownQueue *rabbitmq.Queue
	for name, queueName := range cfg.Queue.Endpoints {
		q, err := rabbitmq.New(cfg.Queue.URL, queueName, log)
		if err != nil {
			return fmt.Errorf("failed to set up queue for worker %q: %w", name, err)
		}
		defer func() { _ = q.Close() }()
		queues[name] = q
		if name == worker {
			ownQueue = q
		}
	}
	if ownQueue == nil {
		return fmt.Errorf("no queue endpoint configured for worker %q", worker)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	emitter := events.NewEmitter(log)
	emitter.RegisterSink(redis.NewProgressSink(redisClient, log))

	ledgerStore := postgres.NewLedgerStore(db)
	itemStore := postgres.NewItemStore(db)
	scheduler := redis.NewScheduler(redisClient, queues, log)

	registry := task.NewRegistry()
	if err := handlers.Register(registry, catalog, worker); err != nil {
		return err
	}

	publisher := task.NewPublisher(catalog, ledgerStore, workerRouter(queues), scheduler, emitter, log)
	processor := task.NewProcessor(itemStore, store.NewTxRunner(db), log)
	consumer := task.NewConsumer(worker, catalog, registry, ownQueue,
		ledgerStore, itemStore, processor, emitter, log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return consumer.Run(groupCtx)
	})

	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})

	if worker == task.WorkerScheduled {
		sweeper := sweep.New(publisher, sweep.DefaultJobs(), log)
		group.Go(func() error {
			return sweeper.Run(groupCtx)
		})
	}

	group.Go(func() error {
		return serveAPI(groupCtx, cfg, ledgerStore, log)
	})

	log.Info("worker process started", "worker", worker)
	err = group.Wait()
	log.Info("worker process stopped", "worker", worker)
	return err
}

// serveAPI runs the ledger read API with graceful shutdown.
func serveAPI(ctx context.Context, cfg *config.Config, ledgers api.LedgerReader, log *slog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(api.NewTaskHandler(ledgers)),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ledger API listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ledger API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ledger API shutdown failed: %w", err)
	}
	return nil
}

// routedDispatcher sends each envelope to its worker's transport queue.
type routedDispatcher struct {
	queues map[string]task.Dispatcher
}

func workerRouter(queues map[string]task.Dispatcher) task.Dispatcher {
	return &routedDispatcher{queues: queues}
}

func (r *routedDispatcher) Publish(ctx context.Context, groupID string, env *task.Envelope) (string, error) {
	queue, ok := r.queues[env.Worker]
	if !ok {
		return "", fmt.Errorf("no queue endpoint configured for worker %q", env.Worker)
	}
	return queue.Publish(ctx, groupID, env)
}
