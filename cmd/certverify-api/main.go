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
	"github.com/wisdmlabs/certverify/internal/auth"
	"github.com/wisdmlabs/certverify/internal/certificate"
	"github.com/wisdmlabs/certverify/internal/config"
	"github.com/wisdmlabs/certverify/internal/database"
	"github.com/wisdmlabs/certverify/internal/links"
	"github.com/wisdmlabs/certverify/internal/lms"
	"github.com/wisdmlabs/certverify/internal/logging"
	"github.com/wisdmlabs/certverify/internal/notify"
	"github.com/wisdmlabs/certverify/internal/server"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "certverify-api",
		Short: "Certificate verification backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Materialize certificate records for historical completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context())
		},
	}
	rootCmd.AddCommand(backfillCmd)

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
	cmd.PersistentFlags().String("verification-base-url", defaults.GetString("links.verification_base_url"), "Public verification page base URL")
	cmd.PersistentFlags().String("certificate-base-url", defaults.GetString("links.certificate_base_url"), "Certificate rendering endpoint base URL")
	cmd.PersistentFlags().String("amqp-url", "", "AMQP broker URL for notification publishing")
	cmd.PersistentFlags().String("admin-token", "", "Bearer token guarding admin routes (overrides env)")
	cmd.PersistentFlags().String("session-signing-secret", "", "Session JWT signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "links.verification_base_url", "verification-base-url")
	bindFlag(cmd, "links.certificate_base_url", "certificate-base-url")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "admin.token", "admin-token")
	bindFlag(cmd, "session.signing_secret", "session-signing-secret")
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

// components holds the assembled service graph shared by the serve and
// backfill commands.
type components struct {
	config   config.AppConfig
	logger   *zap.Logger
	engine   *certificate.Engine
	backfill *certificate.Backfill
	store    *certificate.Store
	links    *links.Builder
	notifier interface{ Close() error }
	closeDB  func() error
}

func (c *components) shutdown() {
	if c.notifier != nil {
		_ = c.notifier.Close()
	}
	if c.closeDB != nil {
		_ = c.closeDB()
	}
	_ = c.logger.Sync()
}

func buildComponents() (*components, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	repository, err := lms.NewRepository(db)
	if err != nil {
		return nil, err
	}

	linkBuilder, err := links.NewBuilder(links.Config{
		VerificationBaseURL: appConfig.VerificationBaseURL,
		CertificateBaseURL:  appConfig.CertificateBaseURL,
		QRSize:              appConfig.QRSize,
	})
	if err != nil {
		return nil, err
	}

	var notifier certificate.Notifier
	var closer interface{ Close() error }
	if appConfig.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(notify.AMQPNotifierConfig{
			URL:   appConfig.AMQPURL,
			Queue: appConfig.NotifyQueue,
			Settings: notify.Settings{
				Enabled:      appConfig.NotifyEnabled,
				AdminEmail:   appConfig.NotifyAdminEmail,
				CC:           appConfig.NotifyCC,
				UserSubject:  appConfig.NotifyUserSubject,
				AdminSubject: appConfig.NotifyAdminSubject,
				Body:         appConfig.NotifyBody,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		notifier = amqpNotifier
		closer = amqpNotifier
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	store, err := certificate.NewStore(certificate.StoreConfig{
		Database: db,
		Content:  repository,
		Oracle:   repository,
		Notifier: notifier,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := certificate.NewEngine(certificate.EngineConfig{
		Content: repository,
		Oracle:  repository,
		Store:   store,
		Links:   linkBuilder,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	backfill, err := certificate.NewBackfill(certificate.BackfillConfig{
		Content: repository,
		Oracle:  repository,
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &components{
		config:   appConfig,
		logger:   logger,
		engine:   engine,
		backfill: backfill,
		store:    store,
		links:    linkBuilder,
		notifier: closer,
		closeDB:  sqlDB.Close,
	}, nil
}

func runServer(ctx context.Context) error {
	app, err := buildComponents()
	if err != nil {
		return err
	}
	defer app.shutdown()

	var sessions server.SessionValidator
	if app.config.SessionSigningKey != "" {
		validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(app.config.SessionSigningKey),
			Issuer:        app.config.SessionIssuer,
			CookieName:    app.config.SessionCookieName,
		})
		if err != nil {
			return err
		}
		sessions = validator
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:     app.engine,
		Backfill:   app.backfill,
		Store:      app.store,
		Links:      app.links,
		Sessions:   sessions,
		AdminToken: app.config.AdminToken,
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
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

func runBackfill(ctx context.Context) error {
	app, err := buildComponents()
	if err != nil {
		return err
	}
	defer app.shutdown()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := app.backfill.Run(signalCtx)
	if err != nil {
		return err
	}

	app.logger.Info("retroactive backfill finished", zap.Int("created", result.Created))
	return nil
}
