package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	PubSub        pubSubClient
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
	// PublisherFactory overrides the Pub/Sub publisher lookup in tests.
	PublisherFactory publisherFactory
}

// Service drains outbox_events to Pub/Sub. Each poll claims a batch under
// one transaction, publishes every row, then records the outcome per row.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	registry     registryResolver
	dlq          dlqRepository
	metrics      *metrics.OutboxMetrics
	publishers   *publisherCache
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = pubSubPublisherFactory(params.PubSub)
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		publishers:   newPublisherCache(factory),
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

// Run polls until ctx is canceled. Empty polls sleep one interval; failed
// polls back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.publishers.stop()

	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := newBackoff(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			if err := sleep(ctx, wait.next()); err != nil {
				return err
			}
		case processed:
			wait.reset()
		default:
			wait.reset()
			if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
				return err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
