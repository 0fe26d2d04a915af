package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"qrauth/codehub/internal/config"
	"qrauth/codehub/internal/handler"
	"qrauth/codehub/internal/metrics"
	"qrauth/codehub/internal/model"
	"qrauth/codehub/internal/render"
	"qrauth/codehub/internal/repository"
	"qrauth/codehub/internal/service"
	"qrauth/codehub/pkg/crypto"
	jwtpkg "qrauth/codehub/pkg/jwt"
)

func serve(ctx context.Context, cmd *cli.Command) error {
	// 1. Load configuration
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 3. Connect to PostgreSQL
	db, err := config.NewPostgresDB(cfg.Database.Postgres)
	if err != nil {
		return err
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.Postgres.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info("database migration completed")
	}

	// 5. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state store")
	default:
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory state store")
	}

	// 6. Codec, renderer and templates
	codec, err := crypto.NewCodec(cfg.Crypto.Secret, cfg.Crypto.LegacyPassphrase)
	if err != nil {
		return fmt.Errorf("init payload codec: %w", err)
	}
	renderer := render.NewRenderer(logger, cfg.Render.MinSize, cfg.Render.MaxSize)
	templates, err := cfg.RenderTemplates()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	// 7. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 8. Initialize services
	store := repository.NewPGStore(db)
	limits := service.Limits{Lifetime: cfg.Usage.LifetimeLimit, Monthly: cfg.Usage.MonthlyLimit}
	locker := service.NewBatchLocker(stateStore, cfg.Batch.LockTTL, cfg.Batch.LockWait)
	generator, err := service.NewGeneratorService(service.GeneratorConfig{
		VerificationBaseURL: cfg.Verification.BaseURL,
		Templates:           templates,
		DefaultTemplate:     cfg.DefaultTemplate,
		MaxBatchSize:        cfg.Batch.MaxSize,
		IdempotencyTTL:      cfg.Batch.IdempotencyTTL,
		Limits:              limits,
	}, store, stateStore, locker, codec, renderer, m, logger)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	codes := service.NewQRCodeService(templates, limits, store, codec, renderer, m, logger)

	// 9. Setup router
	jwtManager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	router := handler.SetupRouter(cfg, logger, jwtManager, registry,
		handler.NewQRCodeHandler(generator, codes, cfg.Server.MaxUploadBytes),
		handler.NewAdminHandler(codes),
	)

	// 10. Start server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited gracefully")
	return nil
}
