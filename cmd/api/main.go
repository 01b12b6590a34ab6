package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/alerts"
	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/approval"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/classifier"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/routing"
	"github.com/spec-kit/helpdesk/internal/scheduler"
	"github.com/spec-kit/helpdesk/internal/seed"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
	"github.com/spec-kit/helpdesk/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisConn.Close()

	pool := pg.Pool()
	ticketRepo := repository.NewTicketRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	routingRuleRepo := repository.NewRoutingRuleRepository(pool)
	workflowRepo := repository.NewWorkflowRepository(pool)
	executionRepo := repository.NewWorkflowExecutionRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)
	alertRuleRepo := repository.NewAlertRuleRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	if cfg.Seed.File != "" {
		seedFromFile(ctx, cfg.Seed.File, seed.Stores{
			RoutingRules: routingRuleRepo,
			Workflows:    workflowRepo,
			AlertRules:   alertRuleRepo,
		}, logger)
	}

	outbound := &http.Client{Timeout: 10 * time.Second}
	mailer := notify.NewMailer(cfg.SMTP)

	gate := approval.NewGate(approvalRepo, ticketRepo, userRepo, notificationRepo, approval.Options{
		Mailer:       mailer,
		PublicAPIURL: cfg.Public.APIURL,
		PublicWebURL: cfg.Public.WebURL,
		Logger:       logger.Named("approval"),
	})

	engine := workflow.NewEngine(executionRepo, workflow.Options{
		Directory:         directory(cfg.LDAP, logger),
		Approver:          gate,
		Logger:            logger.Named("workflow"),
		DefaultAPITimeout: time.Duration(cfg.Workflow.APICallTimeoutSeconds) * time.Second,
		MaxAPITimeout:     time.Duration(cfg.Workflow.MaxAPICallTimeoutSeconds) * time.Second,
		MaxDelay:          time.Duration(cfg.Workflow.MaxDelaySeconds) * time.Second,
		MaxStepVisits:     cfg.Workflow.MaxStepVisits,
	})

	router := routing.NewEngine(routingRuleRepo, agentRepo, teamRepo, routing.Options{
		WorkloadCeiling: cfg.Routing.WorkloadCeiling,
		UrgencyKeywords: cfg.Routing.UrgencyKeywords,
		Logger:          logger.Named("routing"),
	})

	alertDispatcher := alerts.NewDispatcher(alertRuleRepo, repository.NewAlertHistoryRepository(pool), userRepo, notificationRepo, alerts.Options{
		Mailer:  mailer,
		SMS:     notify.NewSMSSender(cfg.SMS, outbound),
		Webhook: notify.NewWebhookSender(outbound),
		Logger:  logger.Named("alerts"),
		OnDelivery: func(channel domain.AlertChannel, err error) {
			metrics.RecordAlertDelivery(channel, err)
		},
	})

	enricher := classifier.NewClient(classifier.Options{
		BaseURL:  cfg.Classifier.URL,
		Timeout:  cfg.Classifier.Timeout(),
		Cache:    classifier.NewRedisCache(redisConn.Client()),
		CacheTTL: time.Duration(cfg.Classifier.CacheTTLSeconds) * time.Second,
		Logger:   logger.Named("classifier"),
	})

	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:          ticketRepo,
		EventRepo:           repository.NewTicketEventRepository(pool),
		UserRepo:            userRepo,
		TeamRepo:            teamRepo,
		WorkflowRepo:        workflowRepo,
		ExecutionRepo:       executionRepo,
		RoutingHistoryRepo:  repository.NewRoutingHistoryRepository(pool),
		Classifier:          enricher,
		WorkflowEngine:      engine,
		Router:              router,
		Approvals:           gate,
		Alerts:              alertDispatcher,
		Dispatcher:          dispatcher,
		Metrics:             metrics,
		Logger:              logger.Named("tickets"),
		ConfidenceThreshold: cfg.Routing.ConfidenceThreshold,
	})

	notificationService := service.NewNotificationService(dispatcher, alertDispatcher, ticketRepo, userRepo, logger.Named("notifications"))
	var relay *events.RedisRelay
	if redisConn.Enabled() && cfg.Events.RedisChannel != "" {
		relay = events.NewRedisRelay(redisConn.Client(), cfg.Events.RedisChannel)
	}
	worker.StartNotificationWorker(dispatcher, notificationService, relay, logger)

	var sweeps *scheduler.Service
	if cfg.Scheduler.Enabled {
		sweeps = scheduler.NewService(scheduler.WithLogger(logger.Named("scheduler")))
		if err := sweeps.RegisterSweeps(ticketService, cfg.Scheduler.ApprovalExpirySpec, cfg.Scheduler.SLABreachSpec); err != nil {
			logger.Fatal("failed to schedule sweeps", zap.Error(err))
		}
		go func() {
			_ = sweeps.Run(ctx)
		}()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	checks := map[string]handlers.Pinger{"postgres": pg}
	if redisConn.Enabled() {
		checks["redis"] = redisConn
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Approvals:      handlers.NewApprovalsHandler(ticketService),
		Workflows:      handlers.NewWorkflowsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if sweeps != nil {
		sweeps.Stop()
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func directory(cfg config.LDAPConfig, logger *zap.Logger) workflow.Directory {
	if !cfg.Enabled {
		logger.Info("ldap disabled; directory actions are simulated")
		return workflow.SimulatedDirectory{Logger: logger.Named("directory")}
	}
	return workflow.NewLDAPDirectory(cfg)
}

func seedFromFile(ctx context.Context, path string, stores seed.Stores, logger *zap.Logger) {
	file, err := seed.LoadFile(path)
	if err != nil {
		logger.Fatal("failed to load seed file", zap.String("path", path), zap.Error(err))
	}
	if _, err := seed.Apply(ctx, file, stores, logger.Named("seed")); err != nil {
		logger.Fatal("failed to apply seed file", zap.String("path", path), zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
