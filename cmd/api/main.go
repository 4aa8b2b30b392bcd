package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskbroker/auction"
	"taskbroker/auth"
	"taskbroker/bid"
	"taskbroker/config"
	"taskbroker/db"
	"taskbroker/dispute"
	"taskbroker/escrow"
	"taskbroker/logger"
	"taskbroker/outbox"
	"taskbroker/registry"
	"taskbroker/settlement"
	"taskbroker/task"
)

type poolAssignments struct {
	pool *pgxpool.Pool
}

func (p poolAssignments) ByTask(ctx context.Context, taskID string) (auction.Assignment, error) {
	return auction.AssignmentByTask(ctx, p.pool, taskID)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		zl.Fatalw("bootstrap database pool", "error", err)
	}
	defer pool.Close()

	collab := cfg.Collaborators
	capClient := registry.NewCapabilityClient(collab.RegistryURL, collab.Timeout)
	repClient := registry.NewReputationClient(collab.ReputationURL, collab.Timeout)
	directory := registry.NewDirectory(capClient, repClient, collab.Timeout)
	notifier := settlement.NewHTTPNotifier(collab.NotifierURL, collab.Timeout)
	payments := settlement.NewHTTPPaymentClient(collab.PaymentsURL, collab.Timeout)

	outboxRepo := outbox.NewRepository(pool)
	taskRepo := task.NewRepository(pool)
	escrowRepo := escrow.NewRepository(pool)
	bidRepo := bid.NewRepository(pool)

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret)
	taskSvc := task.NewService(pool, taskRepo, escrowRepo, payments, outboxRepo)
	escrowSvc := escrow.NewService(escrowRepo)
	bidSvc := bid.NewService(bidRepo, taskRepo, directory)
	closer := auction.NewCloser(pool, bidRepo, escrowRepo, directory, outboxRepo)
	sweeper := auction.NewSweeper(pool, closer, cfg.Sweep.BatchSize, zl)
	disputeSvc := dispute.NewService(dispute.NewRepository(pool, escrowRepo, outboxRepo))
	orchestrator := settlement.NewOrchestrator(closer, escrowSvc, taskSvc, directory, notifier, zl)
	worker := outbox.NewWorker(pool, outboxRepo, notifier, 0, zl)

	go sweeper.Run(ctx, cfg.Sweep.Interval)
	go worker.Run(ctx, 5*time.Second)

	server := &Server{
		authService:       authSvc,
		taskService:       taskSvc,
		bidService:        bidSvc,
		settlementService: orchestrator,
		escrowService:     escrowSvc,
		disputeService:    disputeSvc,
		sweeper:           sweeper,
		assignments:       poolAssignments{pool: pool},
		log:               zl,
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zl.Errorw("http shutdown", "error", err)
		}
	}()

	zl.Infow("api listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Fatalw("http server", "error", err)
	}
}
