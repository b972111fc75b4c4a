package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/supportdesk-backend/api/routes"
	"github.com/angelmondragon/supportdesk-backend/internal/agents"
	"github.com/angelmondragon/supportdesk-backend/internal/assignment"
	"github.com/angelmondragon/supportdesk-backend/internal/chat"
	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/cron"
	"github.com/angelmondragon/supportdesk-backend/internal/ledger"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/internal/orders"
	"github.com/angelmondragon/supportdesk-backend/internal/presence"
	"github.com/angelmondragon/supportdesk-backend/internal/queue"
	"github.com/angelmondragon/supportdesk-backend/internal/realtime"
	"github.com/angelmondragon/supportdesk-backend/pkg/chatcrypto"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/db"
	"github.com/angelmondragon/supportdesk-backend/pkg/idempotency"
	"github.com/angelmondragon/supportdesk-backend/pkg/instance"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
	"github.com/angelmondragon/supportdesk-backend/pkg/migrate"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox"
	"github.com/angelmondragon/supportdesk-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	realtimeMetrics := metrics.NewRealtimeMetrics(registry)

	waiting, err := newQueue(cfg.Queue, redisClient, logg)
	if err != nil {
		return err
	}

	key, err := cfg.Chat.Key()
	if err != nil {
		return err
	}
	cipher, err := chatcrypto.New(key)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(logg, realtimeMetrics)
	dispatcher := notify.NewDispatcher(logg, hub)
	if cfg.MQTT.Enabled() {
		mqttClient, err := realtime.ConnectMQTT(ctx, cfg.MQTT, logg)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(250)
		bridge, err := realtime.NewMQTTBridge(mqttClient, cfg.MQTT.TopicPrefix)
		if err != nil {
			return err
		}
		dispatcher.Register(bridge)
	}

	gormDB := dbClient.DB()
	complaintRepo := complaints.NewRepository(gormDB)
	agentRepo := agents.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)
	dlqRepo := outbox.NewDLQRepository(gormDB)
	emitter := outbox.NewService(outboxRepo, logg)

	engine, err := assignment.NewEngine(assignment.EngineParams{
		DB:         dbClient,
		Complaints: complaintRepo,
		Agents:     agentRepo,
		Ledger:     ledgerRepo,
		Queue:      waiting,
		Outbox:     emitter,
		Notifier:   dispatcher,
		Metrics:    metrics.NewAssignmentMetrics(registry),
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	complaintService, err := complaints.NewService(complaints.ServiceParams{
		DB:       dbClient,
		Repo:     complaintRepo,
		Orders:   orders.NewRepository(gormDB),
		Outbox:   emitter,
		Assigner: engine,
		Notifier: dispatcher,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	chatService, err := chat.NewService(chat.ServiceParams{
		DB:                dbClient,
		Complaints:        complaintRepo,
		Messages:          chat.NewRepository(gormDB),
		Cipher:            cipher,
		Limiter:           redisClient,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		Notifier:          dispatcher,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	ledgerService, err := ledger.NewService(ledgerRepo, nil)
	if err != nil {
		return err
	}

	tracker, err := presence.NewTracker(presence.TrackerParams{
		Agents:   agentRepo,
		Drainer:  engine,
		Notifier: dispatcher,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	dedupe, err := idempotency.NewManager(redisClient, cfg.Redis.IdempotencyTTL)
	if err != nil {
		return err
	}
	socketRouter, err := realtime.NewRouter(realtime.RouterParams{
		Hub:        hub,
		Complaints: complaintService,
		Chat:       chatService,
		Dedupe:     dedupe,
		Logger:     logg,
		Metrics:    realtimeMetrics,
	})
	if err != nil {
		return err
	}
	socket, err := realtime.NewHandler(realtime.HandlerParams{
		Hub:       hub,
		Router:    socketRouter,
		Presence:  tracker,
		Principal: routes.SocketPrincipal,
		Config:    cfg.Realtime,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	scheduler, err := newCron(cfg, logg, registry, dbClient, redisClient, outboxRepo, dlqRepo, complaintRepo, engine)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Store:      redisClient,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Complaints: complaintService,
		Chat:       chatService,
		Ledger:     ledgerService,
		Presence:   tracker,
		Queue:      waiting,
		DeadLetter: dlqRepo,
		Socket:     socket,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"instance":      instance.GetID(),
		"addr":          server.Addr,
		"queue_backend": cfg.Queue.Backend,
		"mqtt_enabled":  cfg.MQTT.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if scheduler != nil {
		g.Go(func() error {
			if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newQueue(cfg config.QueueConfig, client *redis.Client, logg *logger.Logger) (queue.Queue, error) {
	if cfg.UsesRedis() {
		return queue.NewRedisQueue(client, cfg.Key, logg)
	}
	return queue.NewMemoryQueue(), nil
}

func newCron(
	cfg *config.Config,
	logg *logger.Logger,
	reg prometheus.Registerer,
	dbClient *db.Client,
	redisClient *redis.Client,
	outboxRepo *outbox.Repository,
	dlqRepo *outbox.DLQRepository,
	complaintRepo complaints.Repository,
	engine *assignment.Engine,
) (*cron.Service, error) {
	if !cfg.Cron.Enabled {
		return nil, nil
	}

	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Outbox:         outboxRepo,
		DLQ:            dlqRepo,
		OutboxDays:     cfg.Cron.OutboxRetentionDays,
		DLQDays:        cfg.Cron.DLQRetentionDays,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry()
	if err := registry.Schedule(retention, cfg.Cron.OutboxRetentionEvery); err != nil {
		return nil, err
	}

	sweep, err := cron.NewPendingSweepJob(cron.PendingSweepJobParams{
		Logger:     logg,
		Complaints: complaintRepo,
		Assigner:   engine,
		MinAge:     cfg.Cron.PendingSweepMinAge,
		Batch:      cfg.Cron.PendingSweepBatch,
		AssignIdle: cfg.Cron.PendingSweepEnabled,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(sweep); err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
}
