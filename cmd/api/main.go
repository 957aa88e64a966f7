//	@title			Image Gallery API
//	@version		1.0
//	@description	Upload, list, rename and delete your own images.
//
//	@host		localhost:8080
//	@BasePath	/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/config"
	"github.com/TimeFreeze025/it315-project/internal/db"
	"github.com/TimeFreeze025/it315-project/internal/gallery"
	"github.com/TimeFreeze025/it315-project/internal/logger"
	appMiddleware "github.com/TimeFreeze025/it315-project/internal/middleware"
	"github.com/TimeFreeze025/it315-project/internal/storage"
	"github.com/TimeFreeze025/it315-project/internal/user"

	_ "github.com/TimeFreeze025/it315-project/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	imageRepo, userRepo, closeDB, err := openRecordStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("object storage init failed: %w", err)
	}

	// Wire dependencies: repository → service → handler
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc, log)

	imageSvc := gallery.NewService(imageRepo, store, log)
	imageHandler := gallery.NewHandler(imageSvc, userSvc, log, cfg.UploadMaxBytes)

	resolver := auth.NewJWTResolver(cfg.JWTSecret, cfg.AuthIssuer, cfg.AuthAudience)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Use(appMiddleware.Authenticate(resolver, userSvc, log))

		r.Route("/v1/images", imageHandler.Routes)

		r.With(appMiddleware.RequireAuth).Get("/user/{userId}", userHandler.GetName)
	})

	var reconcileDone <-chan struct{}
	if cfg.ReconcileInterval > 0 {
		reconciler := gallery.NewReconciler(imageRepo, store, log, cfg.ReconcileGrace)
		reconcileDone = reconciler.Start(ctx, cfg.ReconcileInterval)
		log.Info("reconciler started",
			zap.Duration("interval", cfg.ReconcileInterval),
			zap.Duration("grace", cfg.ReconcileGrace))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("storage_driver", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	if reconcileDone != nil {
		<-reconcileDone
	}

	log.Info("server stopped")
	return nil
}

func openRecordStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (gallery.Repository, user.Repository, func(), error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		if err := db.MigrateSQLite(cfg.SQLitePath); err != nil {
			return nil, nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		log.Info("connected to database", zap.String("driver", cfg.DBDriver), zap.String("path", cfg.SQLitePath))
		return gallery.NewSQLiteRepository(conn), user.NewSQLiteRepository(conn), func() { _ = conn.Close() }, nil
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.MigratePostgres(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		log.Info("connected to database", zap.String("driver", cfg.DBDriver))
		return gallery.NewPostgresRepository(pool), user.NewPostgresRepository(pool), pool.Close, nil
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	if cfg.StorageDriver == config.StorageS3 {
		return storage.NewS3Storage(ctx, storage.S3Options{
			Endpoint:   cfg.StorageEndpoint,
			AccessKey:  cfg.StorageAccessKey,
			SecretKey:  cfg.StorageSecretKey,
			Region:     cfg.StorageRegion,
			Bucket:     cfg.StorageBucket,
			PublicBase: cfg.StoragePublicBase,
			UseSSL:     cfg.StorageUseSSL,
		}, log)
	}
	return storage.NewMinioStorage(ctx, storage.MinioOptions{
		Endpoint:   cfg.StorageEndpoint,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Bucket:     cfg.StorageBucket,
		PublicBase: cfg.StoragePublicBase,
		UseSSL:     cfg.StorageUseSSL,
	}, log)
}
