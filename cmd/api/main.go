package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-sla/internal/api/http"
	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/notify"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
	"github.com/spec-kit/helpdesk-sla/migrations"
)

const scanLeaseKey = "helpdesk:sla-scan:lease"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	slaConfigRepo := repository.NewSLAConfigRepository(pool)
	ruleRepo := repository.NewAssignmentRuleRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	clock := service.Clock(func() time.Time { return time.Now().UTC() })
	calculator := sla.NewCalculator(cfg.SLA.WarningRatio)
	dispatcher := events.NewInMemoryDispatcher(logger)

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		UserRepo:         userRepo,
		Senders:          buildSenders(cfg.Notification, logger),
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		Config:           cfg.Notification,
		Clock:            clock,
	})
	notificationService.RegisterHandlers()

	balancer := service.NewWorkloadBalancer(service.BalancerDependencies{
		UserRepo:    userRepo,
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		Threshold:   cfg.SLA.RebalanceThreshold,
		Clock:       clock,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		RuleRepo: ruleRepo,
		UserRepo: userRepo,
		Balancer: balancer,
		Logger:   logger,
		Metrics:  metrics,
	})
	slaService := service.NewSLAService(service.SLADependencies{
		ConfigRepo: slaConfigRepo,
		TicketRepo: ticketRepo,
		Calculator: calculator,
		Logger:     logger,
		Clock:      clock,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		UserRepo:    userRepo,
		HistoryRepo: historyRepo,
		Policies:    slaService,
		Assigner:    assignmentService,
		Calculator:  calculator,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Clock:       clock,
	})
	alertService := service.NewAlertService(service.AlertDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Notifier:    notificationService,
		Calculator:  calculator,
		Logger:      logger,
		Metrics:     metrics,
		Clock:       clock,
	})

	if cfg.SLA.SeedFile != "" {
		if err := applySeed(ctx, cfg.SLA.SeedFile, slaService, assignmentService, logger); err != nil {
			logger.Fatal("failed to apply seed file", zap.String("path", cfg.SLA.SeedFile), zap.Error(err))
		}
	}

	workerOpts := worker.AlertWorkerOptions{
		Scanner:  alertService,
		Interval: cfg.SLA.ScanInterval,
		Logger:   logger,
		Metrics:  metrics,
	}
	var redisPinger handlers.Pinger
	if redis.Configured() {
		workerOpts.Leaser = worker.NewRedisLeaser(redis.Client, scanLeaseKey, cfg.SLA.ScanLockTTL, logger)
		redisPinger = redis
	}
	alertWorker := worker.NewAlertWorker(workerOpts)
	go alertWorker.Run(ctx)

	scheduler, err := worker.NewRebalanceScheduler(cfg.SLA.RebalanceSchedule, balancer, logger)
	if err != nil {
		logger.Fatal("failed to schedule rebalance", zap.Error(err))
	}
	scheduler.Start()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisPinger, alertWorker),
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		SLA:            handlers.NewSLAHandler(slaService, alertWorker),
		Assignment:     handlers.NewAssignmentHandler(assignmentService, balancer),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	scheduler.Stop(shutdownCtx)
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func buildSenders(cfg config.NotificationConfig, logger *zap.Logger) *notify.Registry {
	senders := []notify.Sender{
		notify.InternalSender{},
		notify.NewLogSender(domain.ChannelEmail, cfg.EmailFrom, logger),
		notify.NewLogSender(domain.ChannelWhatsApp, "", logger),
	}
	if cfg.SlackConfigured() {
		senders = append(senders, notify.NewSlackSender(slack.New(cfg.SlackBotToken), cfg.SlackChannelID))
	}
	if cfg.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.WebhookURL, cfg.SendTimeout))
	}
	return notify.NewRegistry(senders...)
}

func applySeed(ctx context.Context, path string, slaService *service.SLAService, assignmentService *service.AssignmentService, logger *zap.Logger) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	policies, err := seed.Policies()
	if err != nil {
		return err
	}
	if err := slaService.SeedConfigurations(ctx, policies); err != nil {
		return err
	}
	rules, err := seed.Rules()
	if err != nil {
		return err
	}
	created, err := assignmentService.SeedRules(ctx, rules)
	if err != nil {
		return err
	}
	logger.Info("seed applied", zap.Int("sla_configurations", len(policies)), zap.Int("assignment_rules_created", created))
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
