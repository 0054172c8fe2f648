package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/auth"
	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/config"
	"github.com/MarcoPoloResearchLab/bookclub/internal/database"
	"github.com/MarcoPoloResearchLab/bookclub/internal/logging"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/search"
	"github.com/MarcoPoloResearchLab/bookclub/internal/server"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookclub-api",
		Short: "Book club notes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Token signing secret (overrides env)")
	flags.String("token-issuer", defaults.GetString("auth.issuer"), "Token issuer claim")
	flags.String("token-audience", defaults.GetString("auth.audience"), "Token audience claim")
	flags.Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	flags.Int("bcrypt-cost", defaults.GetInt("auth.bcrypt_cost"), "bcrypt cost for private key hashes")
	flags.StringSlice("cors-allowed-origins", nil, "Allowed CORS origins (all when empty)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "token-issuer")
	bindFlag(cmd, "auth.audience", "token-audience")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.bcrypt_cost", "bcrypt-cost")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
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
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// runMigrations needs only the database and logging keys, so it skips the full validation.
func runMigrations() error {
	logger, err := logging.NewLogger(viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(viper.GetString("database.path"), logger)
	if err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("path", viper.GetString("database.path")))
	return closeDatabase(db)
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db) //nolint:errcheck

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	checker, err := assets.NewChecker(db, logger)
	if err != nil {
		return err
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Comments: commentsService, Logger: logger})
	if err != nil {
		return err
	}
	booksService, err := books.NewService(books.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	searchService, err := search.NewService(db, logger)
	if err != nil {
		return err
	}
	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Tokens:     tokenIssuer,
		Assets:     checker,
		BcryptCost: appConfig.BcryptCost,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:   tokenIssuer,
		Sessions: usersService,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		Users:          usersService,
		Books:          booksService,
		Notes:          notesService,
		Comments:       commentsService,
		Search:         searchService,
		Assets:         checker,
		Activity:       server.NewActivityDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
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
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
