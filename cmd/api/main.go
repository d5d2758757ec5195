package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/database"
	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/handler"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/metrics"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/mqtt"
	"ServerMonitorAPI/internal/provider"
	"ServerMonitorAPI/internal/queue"
	"ServerMonitorAPI/internal/repository"
	"ServerMonitorAPI/internal/resilience"
	"ServerMonitorAPI/internal/scheduler"
	"ServerMonitorAPI/internal/server"
	"ServerMonitorAPI/internal/service"
	"ServerMonitorAPI/internal/websocket"

	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger since main logger isn't ready
		panic("Failed to load configuration: " + err.Error())
	}

	// 2. Initialize Logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Mode:        cfg.Logging.Mode,
		LogFilePath: cfg.Logging.FilePath,
		UseColors:   cfg.Logging.UseColors,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: %v", err)
	}

	cfg.Print()
	log.Info("Starting Server Monitor alerting service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.New()
	m := metrics.New()

	platform, err := config.LoadPlatform(cfg.PlatformPath)
	if err != nil {
		log.Warn("Using default platform config: %v", err)
		platform = config.DefaultPlatform()
	}

	// 3. Database Connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		log.Fatal("Database health check failed: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal("Database migration failed: %v", err)
		}
		log.Info("Database schema applied")
	}

	// 4. Redis and the delivery queue
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer rdb.Close()

	q := queue.New(rdb, queue.Config{
		Name:          cfg.Queue.Name,
		Concurrency:   cfg.Queue.Concurrency,
		Attempts:      cfg.Queue.Attempts,
		InitialDelay:  cfg.Queue.InitialDelay,
		DeadLetterCap: cfg.Queue.DeadLetterCap,
		StaleAfter:    cfg.Queue.StaleAfter,
	}, clk, log)
	if err := q.Health(ctx); err != nil {
		log.Fatal("Redis health check failed: %v", err)
	}
	q.SetObserver(m.ObserveJob)

	// 5. MQTT Client
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		MQTT:   cfg.MQTT,
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create MQTT client: %v", err)
	}
	if err := mqttClient.Connect(); err != nil {
		log.Fatal("Failed to connect to MQTT broker: %v", err)
	}
	defer mqttClient.Disconnect()

	// 6. Event bus
	var bus eventbus.Bus
	switch cfg.EventBus.Mode {
	case "mqtt":
		bus = eventbus.NewMQTTBus(mqttClient, cfg.EventBus.TopicPrefix, cfg.EventBus.Source, clk, log)
	default:
		bus = eventbus.NewLocalBus(cfg.EventBus.Source, clk, log)
	}
	log.Info("Event bus mode: %s", cfg.EventBus.Mode)

	if _, err := m.Register(bus); err != nil {
		log.Fatal("Failed to attach metrics to event bus: %v", err)
	}

	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	if _, err := hub.Register(bus); err != nil {
		log.Fatal("Failed to attach websocket hub to event bus: %v", err)
	}

	// 7. Sibling services
	registry := resilience.NewRegistry(resilience.RegistryConfig{
		Services: platform.Services,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			ResetTimeout:     cfg.Resilience.ResetTimeout,
		},
		Clock:           clk,
		OnBreakerChange: m.ObserveBreaker,
	}, log)
	directory := service.NewDirectory(registry, log)

	// 8. Repositories
	alertRepo := repository.NewAlertRepository(db.DB)
	metricRepo := repository.NewMetricRepository(db.DB)
	ruleRepo := repository.NewRuleRepository(db.DB)
	subscriptionRepo := repository.NewSubscriptionRepository(db.DB)
	notificationRepo := repository.NewNotificationRepository(db.DB)
	analyticsRepo := repository.NewAnalyticsRepository(db.DB)

	// 9. Providers
	emailProvider := provider.NewEmailProvider(cfg.SMTP, log)
	smsProvider := provider.NewSMSProvider(emailProvider, platform.SMS, log)
	providers := provider.NewRegistry()
	providers.Register(models.ChannelEmail, emailProvider)
	providers.Register(models.ChannelSMS, smsProvider)
	providers.Register(models.ChannelWebhook, provider.NewWebhookProvider(cfg.Notifications.WebhookTimeout, log))

	go func() {
		err := config.WatchPlatform(ctx, cfg.PlatformPath, log, func(p *config.Platform) {
			smsProvider.UpdateCarriers(p.SMS)
		})
		if err != nil {
			log.Warn("Platform config will not be reloaded: %v", err)
		}
	}()

	// 10. Services
	alertService := service.NewAlertService(alertRepo, bus, directory, clk, log)
	evaluator := service.NewRuleEvaluator(ruleRepo, metricRepo, alertService, cfg.Alerting.Lookback, clk, log)
	matcher := service.NewSubscriptionMatcher(subscriptionRepo, log)
	dispatcher := service.NewNotificationDispatcher(matcher, notificationRepo, directory, q, cfg.Notifications.MaxRetries, clk, log)
	worker := service.NewDeliveryWorker(notificationRepo, providers, bus, clk, log)
	notificationService := service.NewNotificationService(notificationRepo, q, cfg.Notifications.RetryAge, cfg.Notifications.Retention, clk, log)
	telemetryService := service.NewTelemetryService(metricRepo, clk, log)
	analyticsService := service.NewAnalyticsService(analyticsRepo, clk, log)

	if _, err := dispatcher.Register(bus); err != nil {
		log.Fatal("Failed to register notification dispatcher: %v", err)
	}

	if err := q.Start(ctx, worker.Handle); err != nil {
		log.Fatal("Failed to start delivery queue: %v", err)
	}
	defer q.Stop()

	// 11. MQTT Subscriptions
	if err := mqttClient.Subscribe(cfg.MQTT.TelemetryTopic, telemetryService.HandleMessage); err != nil {
		log.Fatal("Failed to subscribe to telemetry topic: %v", err)
	}
	log.Info("MQTT subscriptions active")

	// 12. Scheduled tasks
	sched := scheduler.New(clk, log)
	sched.OnRun(m.ObserveTask)

	tasks := []struct {
		name string
		spec string
		fn   scheduler.TaskFunc
	}{
		{"rule-evaluation", cfg.Alerting.EvaluationSchedule, evaluator.Run},
		{"notification-retry-sweep", cfg.Notifications.RetrySweepSchedule, func(ctx context.Context) error {
			_, err := notificationService.RetrySweep(ctx)
			return err
		}},
		{"notification-cleanup", cfg.Notifications.CleanupSchedule, func(ctx context.Context) error {
			_, err := notificationService.Cleanup(ctx)
			return err
		}},
		{"service-health", cfg.Resilience.HealthSchedule, registry.CheckHealth},
		{"queue-depth", "@every 15s", func(ctx context.Context) error {
			stats, err := q.Stats(ctx)
			if err != nil {
				return err
			}
			m.SetQueueDepth(stats)
			return nil
		}},
	}
	for _, t := range tasks {
		if err := sched.Add(t.name, t.spec, t.fn); err != nil {
			log.Fatal("Failed to schedule %s: %v", t.name, err)
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	// 13. Handlers
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Health,
		"redis":    q.Health,
		"mqtt": func(ctx context.Context) error {
			_, err := mqttClient.Health(ctx)
			return err
		},
	}, log)

	srv := server.New(cfg, log)
	srv.RegisterHandlers(server.Handlers{
		Alert:        handler.NewAlertHandler(alertService, log),
		Notification: handler.NewNotificationHandler(notificationService, log),
		System:       handler.NewSystemHandler(q, registry, sched, log),
		Telemetry:    handler.NewTelemetryHandler(telemetryService, log),
		Analytics:    handler.NewAnalyticsHandler(analyticsService, log),
		Health:       healthHandler,
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(hub, w, r, log)
		}),
		Metrics: m.Handler(),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 14. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Warn("Shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	cancel()

	log.Info("Shutdown complete")
}
