package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/cmd/atrium/cli"
	"github.com/atrium-hq/atrium/internal/app"
	"github.com/atrium-hq/atrium/internal/auth"
	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/deploy"
	"github.com/atrium-hq/atrium/internal/groups"
	"github.com/atrium-hq/atrium/internal/observability"
	"github.com/atrium-hq/atrium/internal/orgs"
	"github.com/atrium-hq/atrium/internal/platform/cache"
	"github.com/atrium-hq/atrium/internal/platform/db"
	"github.com/atrium-hq/atrium/internal/projects"
	"github.com/atrium-hq/atrium/internal/shared"
	"github.com/atrium-hq/atrium/internal/translate"
	"github.com/atrium-hq/atrium/internal/users"
	"github.com/atrium-hq/atrium/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "atrium_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authzRepo := authz.NewRepository(pool)
	authzCache := authz.NewCache(redisClient, 10*time.Minute)
	authzService := authz.NewService(authzRepo, authzCache, logger)
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	groupsRepo := groups.NewRepository(pool)
	groupsService := groups.NewService(groupsRepo, authzService, logger)
	groupsHandler := groups.NewHandler(logger, groupsService, authzMiddleware)

	orgsRepo := orgs.NewRepository(pool)
	orgsService := orgs.NewService(orgsRepo, authzService, groupsService, logger)
	orgsHandler := orgs.NewHandler(logger, orgsService, authzMiddleware)

	translateRepo := translate.NewRepository(pool)
	translator := translate.NewHTTPTranslator(cfg.TranslatorEndpoint, cfg.TranslatorAPIKey)
	translateService := translate.NewService(translateRepo, translator, cfg.TranslatorBudget, logger)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, authzService, translateService, logger)
	projectsHandler := projects.NewHandler(logger, projectsService, authzMiddleware)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	deployRepo := deploy.NewRepository(pool)
	deployService := deploy.NewService(deploy.Options{
		Store:    deployRepo,
		Registry: deploy.DefaultRegistry(authzService, translateService),
		Enqueuer: jobClient,
		Migrator: db.Migrator{Pool: pool},
		Logger:   logger,
		Version:  cfg.AppVersion,
		Inline:   cfg.RunsTasksInline(),
	})

	if len(os.Args) > 1 {
		runCLI(ctx, logger, cfg, deployService, authzService, db.Migrator{Pool: pool}, os.Args[1:])
		return
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		OrgsHandler:    orgsHandler,
		ProjectHandler: projectsHandler,
		GroupsHandler:  groupsHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCLI(ctx context.Context, logger *slog.Logger, cfg *app.Config, deployService *deploy.Service, authzService *authz.Service, migrator db.Migrator, args []string) {
	switch args[0] {
	case "migrate":
		if err := migrator.Migrate(ctx); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema up to date")
	case "deploy":
		deployCLI := cli.NewDeployCLI(deployService)
		if err := deployCLI.Run(ctx, os.Stdout); err != nil {
			logger.Error("deploy", slog.Any("error", err))
			os.Exit(1)
		}
	case "permissions":
		if len(args) < 3 || args[1] != "reassign" {
			logger.Error("usage: permissions reassign <entity> role=perm,... [role=perm,...]")
			os.Exit(1)
		}
		permsCLI := cli.NewPermissionsCLI(authzService)
		if err := permsCLI.Reassign(ctx, args[2], args[3:], os.Stdout); err != nil {
			logger.Error("reassign permissions", slog.Any("error", err))
			os.Exit(1)
		}
	case "jobs":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = jobsCLI.Close()
		}()
		if len(args) >= 3 && args[1] == "trigger" {
			info, err := jobsCLI.Trigger(ctx, args[2])
			if err != nil {
				logger.Error("trigger job", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("job enqueued", slog.String("id", info.ID), slog.String("type", info.Type))
			return
		}
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("queue state",
			slog.String("queue", stats.Queue),
			slog.Int("pending", stats.Pending),
			slog.Int("active", stats.Active),
			slog.Int("retry", stats.Retry),
		)
	default:
		logger.Error("unknown command", slog.String("command", args[0]))
		os.Exit(1)
	}
}
