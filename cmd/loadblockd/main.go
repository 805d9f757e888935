package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/jconnelly/loadblock-sub002/internal/config"
	"github.com/jconnelly/loadblock-sub002/internal/docstore"
	"github.com/jconnelly/loadblock-sub002/internal/keylock"
	"github.com/jconnelly/loadblock-sub002/internal/ledger"
	"github.com/jconnelly/loadblock-sub002/internal/notify"
	"github.com/jconnelly/loadblock-sub002/internal/orchestrator"
	"github.com/jconnelly/loadblock-sub002/internal/repository"
	"github.com/jconnelly/loadblock-sub002/internal/versionchain"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the loadblock config file")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, "info")
	if err != nil {
		log.Fatalf("Parsing log level: %v", err)
	}

	// Connect Postgresql DB
	repo := repository.NewRepository(logger)
	logger.Info("Connecting to Postgres", "dsn", cfg.PostgresDSN)
	if err := repo.ConnectDB(cfg.PostgresDSN); err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		log.Fatalf("Migrating database: %v", err)
	}
	if cfg.SeedParties {
		if err := repo.Seed(); err != nil {
			log.Fatalf("Seeding parties: %v", err)
		}
	}

	// Initialize Badger DB for the content-addressed document store
	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath))
	if err != nil {
		log.Fatalf("Opening document store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Closing document store", "err", err)
		}
	}()
	docs := docstore.NewBadgerStore(db, logger)

	// Ledger client: remote CometBFT node, or the in-process memory
	// ledger for development.
	var lc ledger.Client
	if cfg.LedgerRPCAddr != "" {
		client, err := ledger.NewCometClient(cfg.LedgerRPCAddr, logger)
		if err != nil {
			log.Fatalf("Connecting to ledger node: %v", err)
		}
		defer client.Stop()
		lc = client
	} else {
		logger.Info("No ledger RPC address configured, using in-process memory ledger")
		lc = ledger.NewMemoryLedger()
	}

	builder := versionchain.NewBuilder(docs, lc, repo, logger)
	publisher := notify.NewPublisher(logger, notify.NewLogSink(logger))
	orch := orchestrator.New(repo, builder, lc, publisher, keylock.New(), logger, orchestrator.Options{
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background reconcile loop, ledger wins over the relational mirror.
	if cfg.ReconcileInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ReconcileInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := orch.ReconcileAll(ctx); err != nil {
						logger.Error("Reconcile pass failed", "err", err)
					}
				}
			}
		}()
	}

	logger.Info("loadblockd started", "reconcile_interval", cfg.ReconcileInterval)

	// Wait for interrupt signal to gracefully shut down
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// One final reconcile pass so the mirror is as fresh as possible on exit.
	if err := orch.ReconcileAll(shutdownCtx); err != nil {
		logger.Error("Final reconcile pass failed", "err", err)
	}
	logger.Info("loadblockd gracefully stopped")
}
