package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/config"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/database"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/server"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/users"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	location, err := appConfig.Location()
	if err != nil {
		return err
	}
	viewPolicy, err := actions.ParseViewPolicy(appConfig.ViewPolicy)
	if err != nil {
		return err
	}

	oracle, err := humanity.NewOracleClient(humanity.OracleClientConfig{
		BaseURL: appConfig.OracleBaseURL,
		AppID:   appConfig.OracleAppID,
		APIKey:  appConfig.OracleAPIKey,
		Retries: appConfig.OracleRetries,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	idProvider := notes.NewUUIDProvider()
	guard, err := ledger.NewGuard(ledger.GuardConfig{IDProvider: idProvider, Clock: time.Now})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	actionsService, err := actions.NewService(actions.ServiceConfig{
		Database:      db,
		Verifier:      oracle,
		Guard:         guard,
		Signals:       signals.NewPolicy(signals.Config{Clock: time.Now, Location: location}),
		IDProvider:    idProvider,
		Notifier:      realtime,
		ViewPolicy:    viewPolicy,
		OracleTimeout: appConfig.OracleTimeout,
		TxTimeout:     appConfig.TxTimeout,
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	identities, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	limiter, closeLimiter := newLimiter(ctx, appConfig, logger)
	defer closeLimiter()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Identities:       identities,
		Actions:          actionsService,
		Realtime:         realtime,
		Limiter:          limiter,
		RateLimit:        appConfig.RateLimitLimit,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("view_policy", string(viewPolicy)),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newLimiter shares attempt counters through Redis when an address is configured.
func newLimiter(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (ratelimit.Limiter, func()) {
	if appConfig.RedisAddress == "" {
		return ratelimit.NewInMemory(appConfig.RateLimitWindow, time.Now), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		DB:       appConfig.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", zap.String("address", appConfig.RedisAddress), zap.Error(err))
	}
	limiter := ratelimit.NewRedis(ratelimit.RedisLimiterConfig{
		Client: client,
		Window: appConfig.RateLimitWindow,
		Logger: logger,
	})
	return limiter, func() {
		_ = client.Close()
	}
}
