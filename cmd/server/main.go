package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/coi-compliance-server/internal/api"
	"github.com/coi-compliance-server/internal/cache"
	"github.com/coi-compliance-server/internal/config"
	"github.com/coi-compliance-server/internal/database"
	"github.com/coi-compliance-server/internal/domain"
	"github.com/coi-compliance-server/internal/logging"
	"github.com/coi-compliance-server/internal/service"
	"github.com/coi-compliance-server/internal/store"
	"github.com/coi-compliance-server/pkg/certparse"
	"github.com/coi-compliance-server/pkg/external"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	configManager, err := config.NewManager(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := logging.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, logging.Output(cfg.Logging.Output))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbConfig := database.ConfigFromDomain(cfg.Database)

	runner, err := database.NewMigrationRunner(dbConfig.URL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := runner.Up(); err != nil {
		logger.WithError(err).Fatal("Failed to apply migrations")
	}
	if err := runner.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close migration runner")
	}
	if *migrateOnly {
		return
	}

	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	sqlStore, err := store.NewPostgresStore(db.SQLDB())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create store")
	}

	templates, err := store.NewTemplateDirectory(cfg.Templates.Directory, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load requirement templates")
	}
	if err := seedTemplates(ctx, templates, sqlStore); err != nil {
		logger.WithError(err).Fatal("Failed to seed requirement templates")
	}
	if cfg.Templates.Watch {
		templates.OnReload(func(updated []*domain.RequirementTemplate) {
			for _, template := range updated {
				if err := sqlStore.SaveTemplate(ctx, template); err != nil {
					logger.WithError(err).WithField("template_id", template.ID).Error("Failed to store reloaded template")
				}
			}
		})
		if err := templates.Watch(ctx); err != nil {
			logger.WithError(err).Warn("Template hot reload disabled")
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisEnabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, extraction cache is memory-only")
		} else {
			defer redisClient.Close()
		}
	}
	extractionCache := cache.New(cfg.Cache, redisClient, logger)

	extractor := certparse.NewExtractor(
		certparse.WithWindowSize(cfg.Engine.WindowSize),
		certparse.WithMinimumAmount(cfg.Engine.MinimumAmount),
	)
	extractionOpts := []service.ExtractionOption{service.WithExtractionCache(extractionCache)}
	if cfg.Vision.Enabled {
		vision := external.NewResilientVisionClient(external.NewVisionClient(cfg.Vision), cfg.Vision, logger)
		extractionOpts = append(extractionOpts, service.WithVision(vision))
	}
	documents := service.NewExtractionService(logger, sqlStore, extractor, extractionOpts...)

	comparator := service.NewComparator(logger, nil, cfg.Engine.DefaultValidityDays)
	compliance := service.NewComplianceService(logger, sqlStore, sqlStore, sqlStore, service.WithComparator(comparator))

	server := api.NewServer(cfg.Server, logger, documents, compliance, api.WithHealthCheck("database", sqlStore))

	logger.WithField("environment", cfg.Environment).Info("Starting COI compliance server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// seedTemplates upserts the YAML templates into the database, which is the template
// source for analyses.
func seedTemplates(ctx context.Context, source domain.TemplateStore, sqlStore *store.SQLStore) error {
	templates, err := source.ListTemplates(ctx)
	if err != nil {
		return err
	}
	for _, template := range templates {
		if err := sqlStore.SaveTemplate(ctx, template); err != nil {
			return err
		}
	}
	return nil
}
