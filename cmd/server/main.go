package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "github.com/hearthview/auth/api/echo"
	"github.com/hearthview/auth/cache"
	redicache "github.com/hearthview/auth/cache/redis"
	"github.com/hearthview/auth/config"
	"github.com/hearthview/auth/domain"
	"github.com/hearthview/auth/internal/federation"
	"github.com/hearthview/auth/memory"
	"github.com/hearthview/auth/mongodb"
	"github.com/hearthview/auth/services"
	"github.com/hearthview/auth/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Bool("in_memory_store", cfg.MongoURI == "").
		Bool("in_memory_cache", cfg.RedisAddr == "").
		Msg("Starting hearthview auth server")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx := context.Background()

	sessions, vaultRepo, userRepo, closeStore, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	claimsCache, closeCache := buildClaimsCache(cfg)

	providers := federation.NewRegistry(federation.NewGoogleProvider(
		federation.ClientCredentials{ClientID: cfg.GoogleDeviceClientID, ClientSecret: cfg.GoogleDeviceClientSecret},
		federation.ClientCredentials{ClientID: cfg.GoogleWebClientID, ClientSecret: cfg.GoogleWebClientSecret},
	))

	gate := services.NewAccessGate(services.AccessGateOptions{
		MaintenanceMode:  cfg.MaintenanceMode,
		AllowlistEnabled: cfg.AllowlistEnabled,
		Allowlist:        cfg.Allowlist,
		DefaultTier:      domain.AccessTier(cfg.DefaultTier),
		Limits: domain.AccessLimits{
			MaxAccounts:   cfg.MaxAccounts,
			MaxDashboards: cfg.MaxDashboards,
		},
	})

	userService := services.NewUserService(userRepo)
	vaultService := services.NewVaultService(vaultRepo, providers,
		time.Duration(cfg.RefreshBufferMin)*time.Minute)
	tokenService := services.NewSessionTokenService([]byte(cfg.JWTSecretKey), cfg.Issuer,
		time.Duration(cfg.SessionTokenTTLHour)*time.Hour, claimsCache)
	flowService := services.NewDeviceFlowService(sessions, userService, vaultService, tokenService,
		gate, providers, services.DeviceFlowOptions{
			VerificationURL: cfg.VerificationURL,
			SessionTTL:      time.Duration(cfg.DeviceSessionTTLMin) * time.Minute,
			PollInterval:    time.Duration(cfg.DevicePollIntervalSec) * time.Second,
		})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	echoapi.NewDeviceAuthAPI(flowService, vaultService, tokenService).RegisterRoutes(e)

	// Expired pending sessions are also TTL-reaped by the store; this sweep
	// keeps the in-memory fallback tidy and the logs honest.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sweepExpiredSessions(sweepCtx, flowService)

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("TracerProvider shutdown error")
	}
	closeCache()
	if err := closeStore(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Storage shutdown error")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// buildStores selects MongoDB-backed repositories when MONGO_URI is set and
// the in-process stores otherwise.
func buildStores(ctx context.Context, cfg *config.ServerConfig) (
	domain.DeviceSessionRepository, domain.VaultRepository, domain.UserRepository,
	func(context.Context) error, error,
) {
	if cfg.MongoURI == "" {
		store := memory.NewDeviceSessionStore()
		closeFn := func(context.Context) error {
			store.Close()
			return nil
		}

		return store, memory.NewVaultStore(), memory.NewUserStore(), closeFn, nil
	}

	db, disconnect, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	sessions, err := mongodb.NewDeviceSessionRepository(ctx, db)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	vaultRepo, err := mongodb.NewVaultRepository(ctx, db)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return sessions, vaultRepo, userRepo, disconnect, nil
}

func buildClaimsCache(cfg *config.ServerConfig) (cache.ClaimsCache, func()) {
	if cfg.RedisAddr == "" {
		c := cache.NewMemoryClaimsCache()

		return c, c.Close
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	return redicache.NewClaimsCache(client, cfg.OtelServiceName), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Redis close error")
		}
	}
}

func sweepExpiredSessions(ctx context.Context, flow *services.DeviceFlowService) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := flow.DeleteExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("Expired session sweep failed")
			}
		}
	}
}
