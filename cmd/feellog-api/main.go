package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/feellog-api/api/swagger"
	"github.com/noah-isme/feellog-api/internal/handler"
	"github.com/noah-isme/feellog-api/internal/repository"
	"github.com/noah-isme/feellog-api/internal/service"
	"github.com/noah-isme/feellog-api/pkg/cache"
	"github.com/noah-isme/feellog-api/pkg/config"
	"github.com/noah-isme/feellog-api/pkg/database"
	"github.com/noah-isme/feellog-api/pkg/logger"
	"github.com/noah-isme/feellog-api/pkg/ratelimit"
)

// @title FeelLog API
// @version 1.0.0
// @description Journaling backend: accounts, sessions and password recovery.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, falling back to in-process rate limits", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokens, err := service.NewTokenService(tokenConfig(cfg.JWT))
	if err != nil {
		logr.Sugar().Fatalw("token service init failed", "error", err)
	}

	metrics := service.NewMetricsService()

	mailer := service.NewMailService(service.NewLogMailer(logr.Named("mail")), logr, metrics, service.MailConfig{
		From:       cfg.Mail.From,
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.MaxRetries,
		RetryDelay: cfg.Mail.RetryDelay,
	})
	mailer.Start(ctx)
	defer mailer.Stop()

	users := repository.NewUserRepository(db)
	sessions := service.NewSessionStore(repository.NewSessionRepository(db), cfg.Auth.MaxSessions, logr, metrics)

	authSvc := service.NewAuthService(
		users,
		sessions,
		tokens,
		service.NewPasswordHasher(cfg.Auth.BcryptCost),
		mailer,
		service.NewValidator(),
		logr,
		metrics,
		service.AuthConfig{
			PasswordMinLength: cfg.Auth.PasswordMinLength,
			OTPTTL:            cfg.Auth.OTPTTL,
			ProfilePhotos:     cfg.Auth.ProfilePhotos,
		},
	)

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Auth: handler.NewAuthHandler(authSvc, handler.CookieConfig{
			Secure: cfg.Cookie.Secure,
			Domain: cfg.Cookie.Domain,
			Path:   cfg.Cookie.Path,
			MaxAge: tokens.RefreshTTL(),
		}),
		Metrics:        handler.NewMetricsHandler(metrics, db),
		Validator:      authSvc,
		Limiters:       buildLimiters(cfg.RateLimit, redisClient),
		MetricsService: metrics,
		Logger:         logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func tokenConfig(cfg config.JWTConfig) service.TokenConfig {
	tc := service.TokenConfig{
		Algorithm:  cfg.Algorithm,
		Secret:     cfg.Secret,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}
	if cfg.PrivateKeyPath != "" {
		raw, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			log.Fatalf("failed to read jwt private key: %v", err)
		}
		tc.PrivateKeyPEM = raw
	}
	if cfg.PublicKeyPath != "" {
		raw, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			log.Fatalf("failed to read jwt public key: %v", err)
		}
		tc.PublicKeyPEM = raw
	}
	return tc
}

// buildLimiters prefers shared Redis counters so limits hold across replicas.
func buildLimiters(cfg config.RateLimitConfig, client *redis.Client) handler.Limiters {
	if !cfg.Enabled {
		return handler.Limiters{}
	}
	if client == nil {
		return handler.Limiters{
			Auth:    ratelimit.NewMemory(cfg.LoginLimit, cfg.Window),
			Refresh: ratelimit.NewMemory(cfg.RefreshLimit, cfg.Window),
			Profile: ratelimit.NewMemory(cfg.ProfileLimit, cfg.Window),
		}
	}
	return handler.Limiters{
		Auth:    ratelimit.NewRedis(client, cfg.LoginLimit, cfg.Window, cfg.RedisKeyPrefix),
		Refresh: ratelimit.NewRedis(client, cfg.RefreshLimit, cfg.Window, cfg.RedisKeyPrefix),
		Profile: ratelimit.NewRedis(client, cfg.ProfileLimit, cfg.Window, cfg.RedisKeyPrefix),
	}
}
