package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/registry"
)

const consumerName = "order-dispatch"

type dispatcher interface {
	Dispatch(ctx context.Context, order dispatch.Order) (dispatch.Result, error)
	Cancel(ctx context.Context, localOrderID string) (dispatch.CancelResult, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type decoder interface {
	Decode(kind string, version int, payload json.RawMessage) (interface{}, error)
}

// Consumer turns order messages into dispatch and cancel calls.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	decoders     decoder
	dispatcher   dispatcher
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, decoders decoder, d dispatcher, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		decoders:     decoders,
		dispatcher:   d,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run receives order messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	kind := strings.TrimSpace(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": kind,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid order envelope")
		return processResult{}
	}
	eventID, err := uuid.Parse(strings.TrimSpace(envelope.EventID))
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())
	version := envelope.Version
	if version == 0 {
		version = 1
	}

	decoded, err := c.decoders.Decode(kind, version, envelope.Data)
	if err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable order message")
			return processResult{}
		}
		c.logg.Error(logCtx, "decode order message", err)
		return processResult{nack: true}
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "order message already processed")
		return processResult{}
	}

	if err := c.handle(logCtx, decoded); err != nil {
		if !retryable(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "order message rejected")
			return processResult{}
		}
		c.logg.Error(logCtx, "order message failed", err)
		_ = c.manager.Delete(logCtx, consumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{}
}

func (c *Consumer) handle(ctx context.Context, decoded interface{}) error {
	switch msg := decoded.(type) {
	case OrderPlaced:
		ctx = c.logg.WithOrderID(ctx, msg.Order.LocalOrderID)
		result, err := c.dispatcher.Dispatch(ctx, msg.Order)
		if err != nil {
			return err
		}
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"suppliers": len(result.Outcomes),
			"failed":    len(result.Failed()),
			"unrouted":  len(result.Unrouted),
		}), "order dispatched")
		if len(result.Outcomes) > 0 && !result.Succeeded() {
			return allFailed(result)
		}
		return nil
	case OrderCancelled:
		ctx = c.logg.WithOrderID(ctx, msg.LocalOrderID)
		result, err := c.dispatcher.Cancel(ctx, msg.LocalOrderID)
		if err != nil {
			return err
		}
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"cancelled": len(result.Cancelled),
			"skipped":   len(result.Skipped),
			"errors":    len(result.Errors),
		}), "order cancelled")
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported order message %T", decoded))
	}
}

// allFailed returns a retryable error only when some branch failed for a
// reason a redelivery could fix.
func allFailed(result dispatch.Result) error {
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil && retryable(outcome.Err) {
			return pkgerrors.Wrap(pkgerrors.CodeTransport, outcome.Err, "every supplier branch failed")
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "every supplier branch failed permanently")
}

func retryable(err error) bool {
	return pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable
}
