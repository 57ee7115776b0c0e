package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/opendesk-io/slaengine/internal/api"
	"github.com/opendesk-io/slaengine/internal/config"
	"github.com/opendesk-io/slaengine/internal/database"
	"github.com/opendesk-io/slaengine/internal/models"
	"github.com/opendesk-io/slaengine/internal/repository"
	"github.com/opendesk-io/slaengine/internal/services/obligation"
	"github.com/opendesk-io/slaengine/internal/services/policy"
	"github.com/opendesk-io/slaengine/internal/services/scheduler"
	"github.com/opendesk-io/slaengine/internal/services/tracker"
)

// logNotifier is the default dispatch sink. Real deployments replace it with
// the notification service client.
type logNotifier struct {
	logger *log.Logger
}

func (n *logNotifier) Notify(ctx context.Context, o models.Obligation) error {
	n.logger.Printf("obligation due: ticket=%s tier=%s kind=%s level=%d scheduled=%s",
		o.TicketID, o.Tier, o.Kind, o.Level, o.ScheduledFireAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func main() {
	logger := log.New(os.Stdout, "slaengine ", log.LstdFlags|log.Lmsgprefix)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Load(configPath); err != nil {
		logger.Printf("config file unavailable, using defaults: %v", err)
	}
	cfg := config.Get()
	if cfg == nil {
		cfg = config.Default()
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	snap, err := policy.LoadFile(cfg.SLA.CatalogPath)
	if err != nil {
		logger.Fatalf("failed to load catalog %s: %v", cfg.SLA.CatalogPath, err)
	}
	catalog := policy.NewCatalog(snap)
	logger.Printf("catalog version %s loaded, %d policies, %d calendars",
		snap.Version, len(snap.Policies), len(snap.Calendars()))

	var repo repository.TrackerRepository
	if cfg.Database.DSN != "" {
		db, err := database.Open(database.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(db); err != nil {
			logger.Fatalf("schema setup failed: %v", err)
		}
		repo = repository.NewSQLTrackerRepository(db)
		logger.Printf("state store: %s", cfg.Database.Driver)
	} else {
		repo = repository.NewMemoryTrackerRepository()
		logger.Printf("state store: in-memory (no database.dsn configured)")
	}

	var store obligation.MarkerStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("redis ping failed: %v", err)
		}
		store = obligation.NewRedisMarkerStore(client, "", cfg.SLA.MarkerTTL)
		logger.Printf("marker store: redis at %s", cfg.Redis.Addr)
	} else {
		store = obligation.NewMemoryMarkerStore()
		logger.Printf("marker store: in-memory")
	}

	trackerSvc := tracker.NewService(repo, catalog,
		tracker.WithLogger(logger),
		tracker.WithHoldStatuses(cfg.SLA.HoldStatuses),
	)

	dispatcher := scheduler.NewService(repo, catalog, store, &logNotifier{logger: logger},
		scheduler.WithLogger(logger),
		scheduler.WithSchedule(cfg.SLA.DispatchSchedule),
	)

	handlers := api.NewHandlers(trackerSvc, catalog, repo, store, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			logger.Printf("dispatch loop stopped: %v", err)
		}
	}()

	go func() {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown incomplete: %v", err)
	}
}
