package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"identity-server/internal/config"
	"identity-server/internal/handler"
	"identity-server/internal/mail"
	"identity-server/internal/metrics"
	"identity-server/internal/repository"
	"identity-server/internal/service"
	"identity-server/pkg/hash"
	"identity-server/pkg/jwt"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return fmt.Errorf("connect to CouchDB: %w", err)
	}
	defer client.Close()

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		logger.Info("created database", "name", cfg.Database.Name)
	}

	userRepo := repository.NewUserRepository(client, cfg.Database.Name)
	refreshRepo := repository.NewRefreshTokenRepository(client, cfg.Database.Name)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if err := refreshRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create refresh token indexes: %w", err)
	}

	var ledger repository.ResetTokenLedger
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		ledger = repository.NewResetTokenLedger(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set, password reset tokens can be replayed until they expire")
	}

	accessKeys, err := loadKeyPair(cfg, cfg.JWT.Access, "access", logger)
	if err != nil {
		return err
	}
	resetKeys, err := loadKeyPair(cfg, cfg.JWT.Reset, "reset", logger)
	if err != nil {
		return err
	}

	accessSigner, err := jwt.NewSigner(accessKeys, service.AccessAudience, cfg.JWT.AccessLifetime, jwt.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return fmt.Errorf("access signer: %w", err)
	}
	resetSigner, err := jwt.NewSigner(resetKeys, service.ResetAudience, cfg.JWT.ResetLifetime, jwt.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return fmt.Errorf("reset signer: %w", err)
	}

	hasher, err := hash.NewHasher(cfg.Security.BcryptCost)
	if err != nil {
		return err
	}

	tokens, err := service.NewTokenService(accessSigner, resetSigner, refreshRepo)
	if err != nil {
		return err
	}

	var mailer mail.Mailer
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		logger.Warn("SMTP_HOST not set, reset mail is only logged")
		mailer = mail.NewLogMailer(logger)
	}

	authenticator := service.NewAuthenticator(userRepo, hasher)
	authService := service.NewAuthService(service.AuthServiceDeps{
		UserRepo:      userRepo,
		Authenticator: authenticator,
		Tokens:        tokens,
		Hasher:        hasher,
		Mailer:        mailer,
		ResetLedger:   ledger,
		ResetURL:      cfg.Security.ResetURL,
		Logger:        logger,
	})
	userService := service.NewUserService(userRepo, authenticator, tokens, hasher)

	router := handler.NewRouter(handler.RouterDeps{
		AuthService: authService,
		UserService: userService,
		Gate:        service.NewGate(tokens),
		Metrics:     metrics.NewRecorder(),
		Logger:      logger,
		DevMode:     cfg.IsDevelopment(),
		CORSOrigins: cfg.CORS.AllowedOrigins,
		CORSMethods: cfg.CORS.AllowedMethods,
		CORSHeaders: cfg.CORS.AllowedHeaders,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting identity server", "addr", addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// loadKeyPair parses the configured PEM pair. In development an unconfigured
// pair is generated on the fly, so tokens do not survive a restart.
func loadKeyPair(cfg *config.Config, material config.KeyMaterial, class string, logger *slog.Logger) (jwt.KeyPair, error) {
	if !material.Configured() && cfg.IsDevelopment() {
		logger.Warn("no key pair configured, generating an ephemeral one", "class", class)
		return jwt.GenerateKeyPair(2048)
	}

	privatePEM, publicPEM, err := material.Read()
	if err != nil {
		return jwt.KeyPair{}, fmt.Errorf("%s key pair: %w", class, err)
	}

	keys, err := jwt.ParseKeyPair(privatePEM, publicPEM)
	if err != nil {
		return jwt.KeyPair{}, fmt.Errorf("%s key pair: %w", class, err)
	}
	return keys, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
