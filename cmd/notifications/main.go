package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sapliy/rental-ecosystem/internal/config"
	"github.com/sapliy/rental-ecosystem/internal/notification"
	"github.com/sapliy/rental-ecosystem/internal/policy"
	"github.com/sapliy/rental-ecosystem/internal/realtime"
	"github.com/sapliy/rental-ecosystem/internal/reminder"
	"github.com/sapliy/rental-ecosystem/pkg/auth"
	"github.com/sapliy/rental-ecosystem/pkg/database"
	"github.com/sapliy/rental-ecosystem/pkg/messaging"
	"github.com/sapliy/rental-ecosystem/pkg/monitoring"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, os.Getenv("NOTIFY_CONFIG_FILE"))
	if err != nil {
		observability.NewLogger("notifications", "info").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Notifications service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdownTracer, err := observability.InitTracer(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Endpoint:       cfg.OTLPEndpoint,
		Environment:    cfg.Environment,
		SampleRatio:    cfg.TraceSample,
	}, logger)
	if err != nil {
		logger.Warn("Failed to init tracer", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	sqlDB, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	logger.Info("Database connection established")

	if cfg.RunMigrations {
		if err := database.Migrate(sqlDB, notification.Migrations, "migrations", cfg.MigrationsTable); err != nil {
			return err
		}
		logger.Info("Schema migrations applied")
	}
	db := database.Wrap(sqlDB)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis connection failed, cache disabled until it recovers", "error", err)
	}

	rabbit, err := messaging.NewRabbitMQClient(messaging.DefaultConfig(cfg.RabbitMQURL), logger)
	if err != nil {
		logger.Warn("Failed to connect to RabbitMQ, SMS and queued tasks disabled", "error", err)
	} else {
		defer rabbit.Close()
		for _, q := range []string{notification.TaskQueue, notification.SMSQueue} {
			if _, err := rabbit.DeclareQueue(q); err != nil {
				logger.Warn("Failed to declare queue", "queue", q, "error", err)
			}
		}
	}

	deliveries := messaging.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaDeliveriesTopic)
	defer deliveries.Close()

	registry := realtime.NewRegistry(logger)
	contacts := notification.NewUserDirectory(db)

	senders := []notification.Sender{notification.NewPushSender(registry, logger)}
	if cfg.ResendAPIKey != "" {
		senders = append(senders, notification.NewEmailSender(notification.NewResendAPI(cfg.ResendAPIKey), contacts, notification.EmailConfig{
			From:          cfg.EmailFrom,
			AppURL:        cfg.AppURL,
			LogoURL:       cfg.LogoURL,
			RedirectTo:    cfg.EmailRedirectTo,
			RatePerSecond: cfg.EmailRate,
			Burst:         cfg.EmailBurst,
		}))
	} else {
		logger.Warn("Resend API key not set, email channel disabled")
	}
	if rabbit != nil {
		senders = append(senders, notification.NewSMSSender(rabbit, contacts))
	}

	deliveryPolicy, err := notification.NewPolicy(cfg.DefaultTimezone, logger)
	if err != nil {
		return err
	}
	serviceCfg := notification.DefaultServiceConfig()
	serviceCfg.RetryWindow = cfg.RetryWindow

	svc := notification.NewService(
		notification.NewRepository(db),
		notification.NewPreferenceRepository(db),
		deliveryPolicy,
		notification.NewDispatcher(logger, senders...),
		logger,
		notification.WithCache(notification.NewRedisCache(rdb, cfg.CacheTTL, logger)),
		notification.WithEventPublisher(deliveries),
		notification.WithUnreadPusher(registry),
		notification.WithConfig(serviceCfg),
	)

	scheduler := reminder.NewScheduler(reminder.NewPostgresSource(db), svc, reminder.Config{
		LeadDays: cfg.ReminderLeadDays,
		Location: deliveryPolicy.DefaultLocation(),
	}, logger)

	authz, err := newPolicyEngine(ctx, cfg)
	if err != nil {
		return err
	}
	audit := logger.With("component", "policy")

	tokens := auth.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer)

	ws := realtime.NewHandler(registry, tokens, realtime.SessionOptions{
		WriteTimeout: cfg.WriteTimeout,
		PongWait:     cfg.PingInterval * 10 / 9,
		PingInterval: cfg.PingInterval,
		ReadLimit:    realtime.DefaultSessionOptions().ReadLimit,
	}, cfg.AllowedOrigins, logger)
	ws.OnConnect(func(ctx context.Context, s *realtime.Session) {
		count, err := svc.UnreadCount(ctx, s.UserID())
		if err != nil {
			return
		}
		_ = s.Send(ctx, notification.UnreadCountMessage(count))
	})

	handler := &NotificationHandler{
		svc:         svc,
		broadcaster: registry,
		reminders:   scheduler,
		policy: policy.NewMiddleware(authz, func(l policy.AuditLog) {
			audit.Info("policy decision", "user_id", l.UserID, "action", l.Action, "target", l.Target, "allowed", l.Allowed, "reason", l.Reason)
		}),
		apiKeySecret: cfg.APIKeySecret,
		serviceKeys:  cfg.ServiceKeyHashes,
		logger:       logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(setupRoutes(handler, auth.Middleware(tokens), ws), "notifications-request"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	monitoring.StartMetricsServer(ctx, cfg.MetricsAddr, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Notifications service starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down notifications service...")
		registry.Shutdown(websocket.CloseGoingAway, "server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if rabbit != nil {
		worker := notification.NewWorker(svc, notification.NewRedisIdempotency(rdb, 24*time.Hour), logger)
		g.Go(func() error {
			return rabbit.Consume(gctx, notification.TaskQueue, worker.ProcessTask)
		})
	}

	events := messaging.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaGroupID, logger)
	defer events.Close()
	router := notification.NewEventRouter(svc, logger)
	g.Go(func() error {
		events.Consume(gctx, router.HandleMessage)
		return nil
	})

	trigger := reminder.NewTrigger(scheduler, cfg.ReminderInterval, logger)
	g.Go(func() error {
		trigger.Start(gctx)
		return nil
	})

	return g.Wait()
}

func newPolicyEngine(ctx context.Context, cfg *config.Config) (policy.PolicyEngine, error) {
	if cfg.PolicyEngine != "rego" {
		return policy.NewHardcodedPolicyEngine(), nil
	}
	module := ""
	if cfg.PolicyFile != "" {
		raw, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		module = string(raw)
	}
	return policy.NewRegoPolicyEngine(ctx, module)
}
