package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quest-service/database"
	"quest-service/handlers"
	"quest-service/services"
	"quest-service/workers"

	"github.com/spf13/cobra"
)

// archiveInterval is how often visit logs past retention are moved to R2.
const archiveInterval = 24 * time.Hour

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireServe(); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, db)
	if err != nil {
		return err
	}

	sched, err := services.StartMaintenanceScheduler(ctx, rt.clock, rt.sweeper, cfg.TokenSweepInterval, rt.archiver, archiveInterval)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("Scheduler shutdown: %v", err)
		}
	}()

	reconcileWorker := workers.NewRewardReconcileWorker(rt.reconciler, cfg.ReconcileInterval)
	go reconcileWorker.Start(ctx)

	app := handlers.NewApp(handlers.AppOptions{
		GatewayToken:   cfg.GatewayToken,
		AllowedOrigins: cfg.AllowedOrigins,
		AccessLog:      true,
	}, handlers.Deps{
		DB:          db,
		Tracking:    rt.tracking,
		Catalog:     rt.catalog,
		Reconciler:  rt.reconciler,
		Progression: rt.progression,
		Gatherer:    rt.registry,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Reward reconciliation running (every %s)", cfg.ReconcileInterval)
	log.Printf("✅ Ledger mode: %s", cfg.LedgerMode)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}
