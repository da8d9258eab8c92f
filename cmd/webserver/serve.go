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

	"device-ingest/configs"
	"device-ingest/internal/cache"
	"device-ingest/internal/database"
	"device-ingest/internal/device"
	"device-ingest/internal/handlers"
	"device-ingest/internal/logger"
	"device-ingest/internal/partition"
	"device-ingest/internal/ratelimit"
	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.New(cfg.Env)
	if cfg.Env != configs.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDBManager(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	cacheMgr := cache.NewCacheManager(cfg.RedisURL, log)
	defer cacheMgr.Close()

	registry := device.NewRegistry(log, device.WithAutoRegister(cfg.AutoRegister))

	limiter, err := newLimiter(cfg, cacheMgr, log)
	if err != nil {
		return err
	}

	partitions := partition.NewManager(db, log)
	authService := services.NewAuthService(registry, limiter, log)
	adminService := services.NewAdminService(cfg.JWTSecret, cfg.JWTTTL, cfg.AdminAPIKeyHash)
	recordService := services.NewRecordService(partitions, db, registry, cacheMgr, log)
	transcriptionService := services.NewTranscriptionService(db, registry, cacheMgr, cfg.UploadDir, log)

	if cfg.AdminAPIKeyHash == "" {
		log.Warn("ADMIN_API_KEY_HASH is not set, admin routes are unreachable")
	}

	var wsHandler *handlers.WebSocketHandler
	if cfg.EnableWebSocket {
		wsHandler = handlers.NewWebSocketHandler(log)
		go wsHandler.RunHub(ctx)
		cacheMgr.OnUpdate(wsHandler.BroadcastUpdate)
	}

	if sweeper, ok := limiter.(ratelimit.Sweeper); ok {
		go runSweeper(ctx, sweeper, cfg.SweepInterval, log)
	}

	router := handlers.NewRouter(handlers.Router{
		Auth:           authService,
		Admin:          adminService,
		Devices:        handlers.NewDeviceHandler(registry, db, cacheMgr, cfg.CacheTTL, cacheMgr, log),
		Records:        handlers.NewRecordHandler(recordService, log),
		Files:          handlers.NewFileHandler(recordService, cfg.UploadDir, cfg.MaxUploadBytes, log),
		Transcriptions: handlers.NewTranscriptionHandler(transcriptionService, cfg.UploadDir, cfg.MaxUploadBytes, log),
		AdminAPI:       handlers.NewAdminHandler(adminService, log),
		Health:         handlers.NewHealthHandler(db, cacheMgr),
		WebSocket:      wsHandler,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.ServerPort, "env", cfg.Env, "rate_limit_policy", cfg.RateLimitPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLimiter(cfg *configs.Config, counter ratelimit.Counter, log *slog.Logger) (ratelimit.Limiter, error) {
	policy, err := ratelimit.ParsePolicy(cfg.RateLimitPolicy)
	if err != nil {
		return nil, err
	}

	var opts []ratelimit.Option
	if cfg.RateLimitShared {
		if policy != ratelimit.PolicyFixed {
			log.Warn("RATE_LIMIT_SHARED only applies to the fixed policy", "policy", string(policy))
		}
		opts = append(opts, ratelimit.WithCounter(counter))
	}

	return ratelimit.New(ratelimit.Config{
		Policy:      policy,
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
	}, log, opts...)
}

// runSweeper drops idle limiter state every interval until ctx is done.
func runSweeper(ctx context.Context, sweeper ratelimit.Sweeper, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sweeper.Sweep(); n > 0 {
				log.Debug("rate limiter swept", "released", n)
			}
		}
	}
}
