package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/spf13/cobra"

	ta "github.com/panyam/tutorauth"
	googleauth "github.com/panyam/tutorauth/oauth2"
	"github.com/panyam/tutorauth/ratelimit"
	"github.com/panyam/tutorauth/smtp"
	fsstore "github.com/panyam/tutorauth/stores/fs"
	gormstore "github.com/panyam/tutorauth/stores/gorm"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	issuer, err := ta.NewTokenIssuer(ta.IssuerConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTExpire.Duration(),
		RefreshTTL:    cfg.JWTRefreshExpire.Duration(),
	})
	if err != nil {
		return err
	}

	mailer := newMailer(cfg, logger)
	metrics := ta.NewMetrics(nil)

	auth := ta.NewAuthService(store, issuer, mailer)
	auth.Logger = logger
	auth.Metrics = metrics
	auth.DevMode = ta.DevMode(cfg.DevMode)
	if cfg.DevMode && !ta.DevBuild() {
		logger.Warn("DEV_MODE is set but this binary was built without the tutorauth_dev tag; ignoring")
	}

	api := ta.NewAPI(auth)
	api.ClientURL = cfg.ClientURL
	api.Production = cfg.Production()
	api.TrustProxy = cfg.TrustProxy

	if cfg.GoogleEnabled() {
		auth.Provider = googleauth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)
		api.Sessions = newSessionManager(cfg)
	} else {
		logger.Info("google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	if err := setupLimiters(ctx, cfg, api, logger); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.AppEnv)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *Config, logger *slog.Logger) (ta.CredentialStore, error) {
	if cfg.DatabaseDSN == "" {
		if cfg.Production() {
			logger.Warn("DATABASE_DSN not set in production; using the file store", "dir", cfg.DataDir)
		}
		return fsstore.NewFSCredentialStore(cfg.DataDir), nil
	}
	db, err := gormstore.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gormstore.NewCredentialStore(db), nil
}

func newMailer(cfg *Config, logger *slog.Logger) *ta.Mailer {
	var mailer *ta.Mailer
	if cfg.Email.Host == "" {
		logger.Info("EMAIL_HOST not set; emails are printed to the log")
		mailer = ta.NewMailerWithSender(cfg.ClientURL, &ta.ConsoleEmailSender{})
	} else {
		from := cfg.Email.From
		if from == "" {
			from = cfg.Email.User
		}
		mailer = ta.NewMailer(cfg.ClientURL, smtp.Factory(smtp.Config{
			Host:               cfg.Email.Host,
			Port:               cfg.Email.Port,
			Username:           cfg.Email.User,
			Password:           cfg.Email.Pass,
			From:               from,
			TLSMode:            cfg.Email.TLSMode,
			InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
		}))
	}
	mailer.Logger = logger
	return mailer
}

// newSessionManager holds the OAuth state between /google/start and the
// callback. Lax so the cookie survives the top-level redirect back from Google.
func newSessionManager(cfg *Config) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = 10 * time.Minute
	sm.Cookie.Name = "tutorauth_oauth"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.Production()
	return sm
}

func setupLimiters(ctx context.Context, cfg *Config, api *ta.API, logger *slog.Logger) error {
	if cfg.RedisURL == "" {
		api.AuthLimiter = ratelimit.NewMemoryLimiter(ratelimit.AuthWindow)
		api.GeneralLimiter = ratelimit.NewMemoryLimiter(ratelimit.GeneralWindow)
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, err := ratelimit.Connect(connectCtx, cfg.RedisURL, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	logger.Info("rate limits shared through redis")
	api.AuthLimiter = ratelimit.NewRedisLimiter(client, ratelimit.AuthWindow, "")
	api.GeneralLimiter = ratelimit.NewRedisLimiter(client, ratelimit.GeneralWindow, "")
	return nil
}
