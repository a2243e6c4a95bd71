package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/auth"
	"github.com/cerberodev/sapo/internal/config"
	"github.com/cerberodev/sapo/internal/curation"
	"github.com/cerberodev/sapo/internal/database"
	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/logging"
	"github.com/cerberodev/sapo/internal/media"
	"github.com/cerberodev/sapo/internal/realtime"
	"github.com/cerberodev/sapo/internal/server"
	"github.com/cerberodev/sapo/internal/waitlist"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sapo-api",
		Short: "Sapo anonymous messaging backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("admin-email", "", "Email address allowed to administer the feed")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Admin session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for image uploads (empty disables uploads)")
	cmd.PersistentFlags().String("s3-region", "", "AWS region for the upload bucket")
	cmd.PersistentFlags().String("s3-public-base-url", "", "Public base URL serving uploaded images")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "admin.email", "admin-email")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "s3.region", "s3-region")
	bindFlag(cmd, "s3.public_base_url", "s3-public-base-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := identity.NewUUIDProvider()
	dispatcher := realtime.NewDispatcher()

	identityService, err := identity.NewService(identity.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	feedService, err := feed.NewService(feed.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Limiter:    identity.NewSubmissionLimiter(),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	engagementService, err := engagement.NewService(engagement.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	curationService, err := curation.NewService(curation.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	waitlistService, err := waitlist.NewService(waitlist.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	composer, err := feed.NewComposer(feed.ComposerConfig{
		Database:   db,
		Modes:      curationService,
		Engagement: engagementService,
		Dispatcher: dispatcher,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	googleVerifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		Audience: appConfig.GoogleClientID,
		JWKSURL:  appConfig.GoogleJWKSURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningKey: appConfig.AuthSigningKey,
		TTL:        time.Duration(appConfig.TokenTTLMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}
	adminGate, err := auth.NewAdminGate(auth.AdminGateConfig{
		Verifier:   googleVerifier,
		Issuer:     tokenIssuer,
		AdminEmail: appConfig.AdminEmail,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var mediaService *media.Service
	if appConfig.MediaEnabled() {
		presigner, err := media.NewS3Presigner(ctx, appConfig.S3Region)
		if err != nil {
			return err
		}
		mediaService, err = media.NewService(media.ServiceConfig{
			Bucket:        appConfig.S3Bucket,
			PublicBaseURL: appConfig.MediaBaseURL,
			Presigner:     presigner,
			IDProvider:    idProvider,
			UploadExpiry:  time.Duration(appConfig.UploadExpiryMins) * time.Minute,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Identity:       identityService,
		Feed:           feedService,
		Composer:       composer,
		Engagement:     engagementService,
		Curation:       curationService,
		Waitlist:       waitlistService,
		Media:          mediaService,
		AdminGate:      adminGate,
		Logger:         logger,
		Clock:          time.Now,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
