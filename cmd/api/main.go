//	@title			Upload API
//	@version		1.0
//	@description	Upload tickets, quota accounting and object storage URLs for model uploads.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	UploadTicket
//	@in							header
//	@name						X-Upload-Ticket
//	@description				Signed upload ticket issued by the identity service.
//
//	@securityDefinitions.apikey	InternalToken
//	@in							header
//	@name						X-Internal-Token
//	@description				Shared token for service-to-service calls.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/otel"

	"github.com/printforge/upload/internal/config"
	"github.com/printforge/upload/internal/db"
	"github.com/printforge/upload/internal/metrics"
	appMiddleware "github.com/printforge/upload/internal/middleware"
	"github.com/printforge/upload/internal/quota"
	"github.com/printforge/upload/internal/response"
	"github.com/printforge/upload/internal/storage"
	"github.com/printforge/upload/internal/upload"

	_ "github.com/printforge/upload/docs/swagger"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		return err
	}

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	objects := storage.NewGateway(backend, cfg.StorageOpTimeout, log)

	if err := metrics.Init(otel.Meter("github.com/printforge/upload")); err != nil {
		return err
	}

	// Wire dependencies: repository → service → handler
	ledger := quota.NewLedger(quota.NewRepository(pool), quota.Limits{
		AnonDaily:   cfg.AnonDailyBytes,
		IPDaily:     cfg.IPDailyBytes,
		UserMonthly: cfg.UserMonthlyBytes,
		UserHourly:  cfg.UserHourlyBytes,
	})
	uploadSvc := upload.NewService(
		upload.NewRepository(pool),
		db.NewTransactor(pool),
		ledger,
		objects,
		upload.Config{PresignTTL: cfg.PresignTTL, MaxFileBytes: cfg.MaxFileBytes},
		log,
	)
	uploadHandler := upload.NewHandler(uploadSvc, log)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "X-Request-ID",
			appMiddleware.TicketHeader, appMiddleware.InternalTokenHeader,
		},
		MaxAge: 300,
	}))

	r.Get("/health", health(pool, log))

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	uploadHandler.Mount(r,
		appMiddleware.RequireTicket(cfg.TicketSecret, time.Now, log),
		appMiddleware.RequireInternalToken(cfg.InternalToken),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Backend, error) {
	if cfg.StorageDriver == "s3" {
		return storage.NewS3Backend(storage.S3Config{
			Endpoint:  s3Endpoint(cfg.StorageEndpoint, cfg.StorageUseSSL),
			Region:    cfg.StorageRegion,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			PathStyle: cfg.StorageEndpoint != "",
		}), nil
	}

	backend, err := storage.NewMinioBackend(storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		Region:    cfg.StorageRegion,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, err
	}
	if cfg.StorageCreateBucket {
		if err := backend.EnsureBucket(ctx, log); err != nil {
			return nil, err
		}
	}
	return backend, nil
}

// s3Endpoint turns a host:port into the URL the AWS SDK expects.
func s3Endpoint(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// health reports ok when the database answers a ping.
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	response.Envelope
//	@Failure	503	{object}	response.Envelope
//	@Router		/health [get]
func health(pool *pgxpool.Pool, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			log.WarnContext(ctx, "health: database ping failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		response.OK(w, map[string]string{"status": "ok"})
	}
}
