package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cabinet-cloud/cabinet/internal/cache"
	"github.com/cabinet-cloud/cabinet/internal/config"
	"github.com/cabinet-cloud/cabinet/internal/controllers"
	"github.com/cabinet-cloud/cabinet/internal/managers"
	"github.com/cabinet-cloud/cabinet/internal/objectstore"
	"github.com/cabinet-cloud/cabinet/internal/postgres"
	"github.com/cabinet-cloud/cabinet/internal/server"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cabinet API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return runServe(configFile)
		},
	}

	return cmd
}

func runServe(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	redisCache := cache.NewRedisCache(cache.RedisCacheDependencies{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisCache.Close()

	// Cache is an optimization, not a correctness dependency: a dead
	// redis only costs us the memoized listings.
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, continuing without warm cache")
	}

	objectStore, err := objectstore.NewS3Store(objectstore.S3StoreDependencies{
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Endpoint:        cfg.Storage.Endpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	fileManager := managers.NewFileManager(managers.FileManagerDependencies{
		Repository:    postgres.NewNodeRepository(postgres.NodeRepositoryDependencies{Pool: pool}),
		ObjectStore:   objectStore,
		Cache:         redisCache,
		ListingTTL:    cfg.Cache.ListingTTL,
		BreadcrumbTTL: cfg.Cache.BreadcrumbTTL,
		PresignTTL:    cfg.Cache.PresignTTL,
	})

	filesController := controllers.NewFilesController(controllers.FilesControllerDependencies{
		FileManager: fileManager,
	})

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		FilesController: filesController,
		JWTSecret:       cfg.Auth.JWTSecret,
		BodyLimit:       cfg.Server.BodyLimit,
	})

	log.Info().Str("address", cfg.Server.Address).Msg("Starting cabinet API")

	if err := app.Listen(cfg.Server.Address, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("Cabinet API stopped")

	return nil
}
