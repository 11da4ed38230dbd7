package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchPendingTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, ceiling int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher publishes one message and blocks until the server acks it.
type topicPublisher interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pinger
	Publisher  topicPublisher
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
}

// Service drains outbox_events onto Pub/Sub. Rows that can never publish are
// copied to outbox_dlq and retired; transient failures back off and retry.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pinger
	publisher    topicPublisher
	repo         outboxRepository
	dlq          dlqRepository
	registry     eventResolver
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       func(time.Duration) time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Publisher == nil:
		return nil, errors.New("publisher is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		publisher:    params.Publisher,
		repo:         params.Repository,
		dlq:          params.DLQ,
		registry:     params.Registry,
		batchSize:    params.Config.BatchSize,
		maxAttempts:  params.Config.MaxAttempts,
		pollInterval: time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		jitter:       withJitter,
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	return svc, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		drained, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case drained > 0:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
		}
		if err := sleep(ctx, s.jitter(wait)); err != nil {
			return err
		}
	}
}

type disposition int

const (
	published disposition = iota
	retry
	terminal
)

// processBatch publishes one batch inside a transaction and reports how many
// rows it handled.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	handled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchPendingTx(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := s.handle(ctx, tx, event); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (s *Service) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	})

	outcome, reason, pubErr := s.publish(ctx, event)
	if outcome == retry && event.AttemptCount+1 >= s.maxAttempts {
		outcome, reason = terminal, enums.OutboxDLQReasonMaxAttempts
		pubErr = fmt.Errorf("max publish attempts reached: %w", pubErr)
	}

	switch outcome {
	case published:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case retry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", pubErr.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case terminal:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        pubErr.Error(),
			"error_reason": reason,
		}), "outbox event will not be retried")
		msg := pubErr.Error()
		if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, pubErr, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent) (disposition, enums.OutboxDLQErrorReason, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return terminal, enums.OutboxDLQReasonNonRetryable, err
	}
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, resolved.Descriptor.Topic, msg); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return terminal, enums.OutboxDLQReasonNonRetryable, err
		}
		return retry, "", err
	}
	return published, "", nil
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

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

// gcpPublisher resolves topic publishers from the shared Pub/Sub client and
// reuses them across batches.
type gcpPublisher struct {
	lookup func(topic string) *gcppubsub.Publisher

	mu     sync.Mutex
	topics map[string]*gcppubsub.Publisher
}

func newGCPPublisher(lookup func(topic string) *gcppubsub.Publisher) *gcpPublisher {
	return &gcpPublisher{lookup: lookup, topics: map[string]*gcppubsub.Publisher{}}
}

func (p *gcpPublisher) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := p.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}

func (p *gcpPublisher) publisher(topic string) *gcppubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.topics[topic]; ok {
		return pub
	}
	pub := p.lookup(topic)
	if pub != nil {
		p.topics[topic] = pub
	}
	return pub
}

// Stop flushes and stops every cached publisher.
func (p *gcpPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pub := range p.topics {
		pub.Stop()
	}
}
