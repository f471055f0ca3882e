package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/authz"
	"github.com/ekaya-inc/ekaya-rest/pkg/config"
	"github.com/ekaya-inc/ekaya-rest/pkg/database"
	"github.com/ekaya-inc/ekaya-rest/pkg/engine"
	"github.com/ekaya-inc/ekaya-rest/pkg/handlers"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	"github.com/ekaya-inc/ekaya-rest/pkg/middleware"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, migrate, logger)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("executor", cfg.Database.Executor))

	db, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		sqlDB := db.SQLDB()
		err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
		_ = sqlDB.Close()
		if err != nil {
			return err
		}
	}

	router, cleanup, err := newRouter(cfg, db, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-rest",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		if cfg.TLSCertPath != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	return database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
		Logger:         logger,
	})
}

// newRouter assembles executor, guard, engine and auth into the HTTP
// router. The returned cleanup releases the JWKS refreshers.
func newRouter(cfg *config.Config, db *database.DB, logger *zap.Logger) (http.Handler, func(), error) {
	roles := database.Roles{
		Anon:          cfg.Database.AnonRole,
		Authenticated: cfg.Database.AuthenticatedRole,
		Service:       cfg.Database.ServiceRole,
		Switch:        cfg.Database.SwitchRoles,
	}

	var exec database.Executor
	if cfg.Database.Executor == config.ExecutorSQL {
		exec = database.NewSQLExecutor(db.SQLDB(), roles, logger)
	} else {
		exec = database.NewPoolExecutor(db, roles, logger)
	}

	tables, err := authz.ParseProtectedTables(cfg.REST.ProtectedTables)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid rest.protected_tables: %w", err)
	}
	guard := authz.NewGuard(restsql.NewBuilder(cfg.REST.DefaultSchema), tables, logger)
	eng := engine.New(exec, guard, engineConfig(cfg), logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		SharedSecret:       cfg.Auth.JWTSecret,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Auth.EnableVerification {
		logger.Warn("JWT verification is disabled; tokens are trusted without a signature check")
	}

	authService := auth.NewAuthService(jwksClient, auth.ServiceConfig{
		AllowAnonymous:   cfg.Auth.AllowAnonymous,
		DefaultProjectID: cfg.Auth.ProjectID(),
	}, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(r)

	rest := handlers.NewRESTHandler(eng, logger)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Session)
		rest.RegisterRoutes(r)
	})

	return r, jwksClient.Close, nil
}
