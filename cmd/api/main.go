package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/jovemegidio/sistemaerp-suporte/internal/api/http"
	"github.com/jovemegidio/sistemaerp-suporte/internal/api/http/handlers"
	"github.com/jovemegidio/sistemaerp-suporte/internal/auth"
	"github.com/jovemegidio/sistemaerp-suporte/internal/config"
	"github.com/jovemegidio/sistemaerp-suporte/internal/events"
	"github.com/jovemegidio/sistemaerp-suporte/internal/observability"
	"github.com/jovemegidio/sistemaerp-suporte/internal/persistence"
	"github.com/jovemegidio/sistemaerp-suporte/internal/relay"
	"github.com/jovemegidio/sistemaerp-suporte/internal/repository"
	"github.com/jovemegidio/sistemaerp-suporte/internal/service"
	"github.com/jovemegidio/sistemaerp-suporte/internal/triage"
	"github.com/jovemegidio/sistemaerp-suporte/internal/worker"
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

	db, err := persistence.NewMySQL(ctx, cfg.MySQL, logger)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()

	if cfg.MySQL.RunMigrations {
		if err := persistence.RunMigrations(ctx, db.Handle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	ticketRepo := repository.NewTicketRepository(db.Handle())
	messageRepo := repository.NewMessageRepository(db.Handle())
	knowledgeRepo := repository.NewKnowledgeRepository(db.Handle(), redis, logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		MessageRepo:   messageRepo,
		KnowledgeRepo: knowledgeRepo,
		Dispatcher:    dispatcher,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	triageService := triage.NewService(knowledgeRepo, messageRepo, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenTTLMinutes)

	hub := relay.NewHub(relay.Dependencies{
		Tickets:        ticketService,
		Triage:         triageService,
		Tokens:         tokens,
		Logger:         logger,
		Metrics:        metrics,
		SendBufferSize: cfg.Relay.SendBufferSize,
	})

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, db, redis),
		Tickets:         handlers.NewTicketsHandler(ticketService),
		Knowledge:       handlers.NewKnowledgeHandler(ticketService),
		Hub:             hub,
		AdminMiddleware: auth.NewAdminMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
