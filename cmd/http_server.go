package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/audit"
	auditpg "github.com/frahmantamala/member-directory/internal/audit/postgres"
	"github.com/frahmantamala/member-directory/internal/auth"
	authpg "github.com/frahmantamala/member-directory/internal/auth/postgres"
	"github.com/frahmantamala/member-directory/internal/core/events"
	"github.com/frahmantamala/member-directory/internal/job"
	jobpg "github.com/frahmantamala/member-directory/internal/job/postgres"
	"github.com/frahmantamala/member-directory/internal/member"
	memberpg "github.com/frahmantamala/member-directory/internal/member/postgres"
	"github.com/frahmantamala/member-directory/internal/transport/rest"
	"github.com/frahmantamala/member-directory/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config       *internal.Config
	DB           *sqlx.DB
	GormDB       *gorm.DB
	Router       *chi.Mux
	AuditEmitter *audit.Emitter
	Logger       *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		// drain queued audit entries before the DB goes away
		deps.AuditEmitter.Close(deps.Config.Audit.FlushTimeout)
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	// repositories
	userRepo := authpg.NewRepository(gormDB)
	memberRepo := memberpg.NewMemberRepository(gormDB)
	jobRepo := jobpg.NewJobRepository(gormDB)
	auditRepo := auditpg.NewAuditRepository(gormDB)

	// audit emitter drains on shutdown, never blocks request handlers
	emitter := audit.NewEmitter(auditRepo, lg, config.Audit.QueueSize)

	// auth
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(userRepo, tokenGen, lg).
		WithLockoutPolicy(config.Security.MaxFailedLogins, config.Security.LockoutDuration)
	evaluator := auth.NewEvaluator()
	rbac := auth.NewRBACAuthorization(evaluator, lg)

	// domain services
	eventBus := events.NewEventBus(lg)
	memberService := member.NewService(memberRepo, evaluator, emitter, lg)
	jobService := job.NewService(jobRepo, evaluator, emitter, eventBus, lg)

	// handlers
	authHandler := auth.NewHandler(authService).WithRecorder(emitter)
	memberHandler := member.NewHandler(memberService)
	jobHandler := job.NewHandler(jobService)
	auditHandler := audit.NewHandler(auditRepo)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db, authHandler, rbac, memberHandler, jobHandler, auditHandler, lg)

	return &Dependencies{
		Config:       config,
		Logger:       lg,
		DB:           db,
		GormDB:       gormDB,
		Router:       router,
		AuditEmitter: emitter,
	}, nil
}

// initDB opens the raw pgx-backed connection used for health checks.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm opens the ORM connection. TranslateError is required so unique
// constraint violations surface as gorm.ErrDuplicatedKey and the repositories
// can map them to domain conflicts.
func initGorm(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	gormDB, err := gorm.Open(gormpg.Open(cfg.Source), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return gormDB, nil
}
