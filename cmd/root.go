package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"quest-service/config"
	"quest-service/database"
	"quest-service/services"
	"quest-service/utils"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const Version = "0.1.0"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "quest-service",
	Short:         "External-visit quest tracking service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSweepTokensCmd(),
		newReconcileRewardsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌ "+err.Error())
		os.Exit(1)
	}
}

// runtime is the wired service graph shared by every command.
type runtime struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *prometheus.Registry
	metrics  *services.Metrics
	clock    clockwork.Clock

	store       *services.TrackingStore
	catalog     *services.CatalogService
	ledger      services.RewardLedger
	progression *services.ProgressionLedger
	tracking    *services.TrackingService
	reconciler  *services.RewardReconciler
	sweeper     *services.TokenSweeper
	archiver    *services.VisitLogArchiver
}

func loadConfig() (*config.Config, error) {
	return config.Load(envFile)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return database.Open(cfg.DatabaseURL)
}

func newRuntime(ctx context.Context, cfg *config.Config, db *gorm.DB) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		db:       db,
		registry: prometheus.NewRegistry(),
		clock:    clockwork.NewRealClock(),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = services.NewMetrics(rt.registry)

	rt.store = services.NewTrackingStore(db)
	rt.catalog = services.NewCatalogService(db)

	switch cfg.LedgerMode {
	case config.LedgerModeHTTP:
		rt.ledger = services.NewHTTPLedger(cfg.LedgerURL, cfg.LedgerToken)
		log.Printf("🔗 Rewards credited via remote ledger at %s", cfg.LedgerURL)
	default:
		rt.progression = services.NewProgressionLedger(db, rt.clock)
		rt.ledger = rt.progression
	}

	visit := services.NewExternalVisitVerifier(rt.store, rt.catalog, rt.ledger, rt.clock, rt.metrics, services.ExternalVisitConfig{
		TokenTTL:      cfg.TokenTTL,
		QueryParam:    cfg.TokenQueryParam,
		RewardLease:   cfg.RewardLease,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	rt.tracking = services.NewTrackingService(rt.catalog, rt.store, rt.clock, rt.metrics, visit)
	rt.reconciler = services.NewRewardReconciler(rt.store, rt.ledger, rt.clock, rt.metrics, cfg.RewardLease)
	rt.sweeper = services.NewTokenSweeper(rt.store, rt.clock, rt.metrics)

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			return nil, err
		}
		rt.archiver = services.NewVisitLogArchiver(rt.store, r2, rt.clock, rt.metrics, cfg.VisitLogRetention)
	} else {
		log.Println("⚠️  R2 not configured, visit log archiving disabled")
	}

	return rt, nil
}
