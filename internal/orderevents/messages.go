package orderevents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/registry"
)

// Message kinds published by the marketplace side onto the orders topic.
const (
	KindOrderPlaced    = "order_placed"
	KindOrderCancelled = "order_cancelled"
)

// OrderPlaced carries a customer order ready for fan-out.
type OrderPlaced struct {
	Order dispatch.Order `json:"order"`
}

// OrderCancelled names the customer order to cancel.
type OrderCancelled struct {
	LocalOrderID string `json:"local_order_id"`
	Reason       string `json:"reason,omitempty"`
}

// NewDecoders registers the v1 decoders for inbound order messages.
func NewDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	reg.Register(KindOrderPlaced, 1, func(payload json.RawMessage) (interface{}, error) {
		var msg OrderPlaced
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, registry.NewNonRetryableError(fmt.Errorf("decode %s: %w", KindOrderPlaced, err))
		}
		return msg, nil
	})
	reg.Register(KindOrderCancelled, 1, func(payload json.RawMessage) (interface{}, error) {
		var msg OrderCancelled
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, registry.NewNonRetryableError(fmt.Errorf("decode %s: %w", KindOrderCancelled, err))
		}
		if strings.TrimSpace(msg.LocalOrderID) == "" {
			return nil, registry.NewNonRetryableError(fmt.Errorf("%s: local_order_id missing", KindOrderCancelled))
		}
		return msg, nil
	})
	return reg
}
