package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
)

func TestProcessOrderPlacedDispatches(t *testing.T) {
	manager := &stubManager{}
	d := &stubDispatcher{result: resultWith(nil)}
	c := newTestConsumer(d, manager)

	res := c.process(context.Background(), orderPlacedMessage(t, "ord-1"))
	if res.nack {
		t.Fatal("expected ack")
	}
	if len(d.dispatched) != 1 || d.dispatched[0].LocalOrderID != "ord-1" {
		t.Fatalf("unexpected dispatch calls %+v", d.dispatched)
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected one idempotency check, got %d", len(manager.checked))
	}
}

func TestProcessPartialSuccessAcks(t *testing.T) {
	manager := &stubManager{}
	result := resultWith(nil)
	result.Outcomes[uuid.New()] = dispatch.Outcome{Err: pkgerrors.New(pkgerrors.CodeTransport, "timeout")}
	c := newTestConsumer(&stubDispatcher{result: result}, manager)

	if c.process(context.Background(), orderPlacedMessage(t, "ord-2")).nack {
		t.Fatal("partial success should ack")
	}
	if len(manager.deleted) != 0 {
		t.Fatal("idempotency key should be kept")
	}
}

func TestProcessAllBranchesFailedRetryable(t *testing.T) {
	manager := &stubManager{}
	result := dispatch.Result{Outcomes: map[uuid.UUID]dispatch.Outcome{
		uuid.New(): {Err: pkgerrors.New(pkgerrors.CodeTransport, "connection refused")},
		uuid.New(): {Err: pkgerrors.New(pkgerrors.CodeMapping, "bad mapping")},
	}}
	c := newTestConsumer(&stubDispatcher{result: result}, manager)

	if !c.process(context.Background(), orderPlacedMessage(t, "ord-3")).nack {
		t.Fatal("expected nack when every branch failed with a transport error")
	}
	if len(manager.deleted) != 1 {
		t.Fatal("expected idempotency key to be released")
	}
}

func TestProcessAllBranchesFailedPermanently(t *testing.T) {
	manager := &stubManager{}
	result := dispatch.Result{Outcomes: map[uuid.UUID]dispatch.Outcome{
		uuid.New(): {Err: pkgerrors.New(pkgerrors.CodeValidation, "below minimum order")},
	}}
	c := newTestConsumer(&stubDispatcher{result: result}, manager)

	if c.process(context.Background(), orderPlacedMessage(t, "ord-4")).nack {
		t.Fatal("permanent failures should ack")
	}
	if len(manager.deleted) != 0 {
		t.Fatal("idempotency delete should not run")
	}
}

func TestProcessInvalidOrderAcks(t *testing.T) {
	manager := &stubManager{}
	d := &stubDispatcher{err: pkgerrors.New(pkgerrors.CodeValidation, "invalid order")}
	c := newTestConsumer(d, manager)

	if c.process(context.Background(), orderPlacedMessage(t, "")).nack {
		t.Fatal("validation failure should ack")
	}
}

func TestProcessInfrastructureErrorNacks(t *testing.T) {
	manager := &stubManager{}
	d := &stubDispatcher{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "load links")}
	c := newTestConsumer(d, manager)

	if !c.process(context.Background(), orderPlacedMessage(t, "ord-5")).nack {
		t.Fatal("expected nack")
	}
	if len(manager.deleted) != 1 {
		t.Fatal("expected idempotency key to be released")
	}
}

func TestProcessOrderCancelled(t *testing.T) {
	manager := &stubManager{}
	d := &stubDispatcher{}
	c := newTestConsumer(d, manager)

	msg := buildMessage(t, KindOrderCancelled, OrderCancelled{LocalOrderID: "ord-6"})
	if c.process(context.Background(), msg).nack {
		t.Fatal("expected ack")
	}
	if len(d.cancelled) != 1 || d.cancelled[0] != "ord-6" {
		t.Fatalf("unexpected cancel calls %v", d.cancelled)
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	d := &stubDispatcher{}
	c := newTestConsumer(d, manager)

	if c.process(context.Background(), orderPlacedMessage(t, "ord-7")).nack {
		t.Fatal("expected ack")
	}
	if len(d.dispatched) != 0 {
		t.Fatal("dispatcher should not run for a duplicate")
	}
}

func TestProcessIdempotencyErrorNacks(t *testing.T) {
	manager := &stubManager{checkErr: errors.New("redis down")}
	d := &stubDispatcher{}
	c := newTestConsumer(d, manager)

	if !c.process(context.Background(), orderPlacedMessage(t, "ord-8")).nack {
		t.Fatal("expected nack")
	}
	if len(d.dispatched) != 0 {
		t.Fatal("dispatcher should not run")
	}
}

func TestProcessUndecodableMessagesAck(t *testing.T) {
	cases := map[string]*gcppubsub.Message{
		"invalid envelope": {ID: "m", Data: []byte("not json"), Attributes: map[string]string{"event_type": KindOrderPlaced}},
		"unknown kind":     buildMessage(t, "order_refunded", map[string]string{"x": "y"}),
		"missing order id": buildMessage(t, KindOrderCancelled, OrderCancelled{}),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			manager := &stubManager{}
			d := &stubDispatcher{}
			c := newTestConsumer(d, manager)
			if c.process(context.Background(), msg).nack {
				t.Fatal("expected ack")
			}
			if len(manager.checked) != 0 {
				t.Fatal("idempotency manager should not be touched")
			}
			if len(d.dispatched)+len(d.cancelled) != 0 {
				t.Fatal("dispatcher should not run")
			}
		})
	}
}

func orderPlacedMessage(t *testing.T, localOrderID string) *gcppubsub.Message {
	t.Helper()
	return buildMessage(t, KindOrderPlaced, OrderPlaced{Order: dispatch.Order{
		LocalOrderID: localOrderID,
		Currency:     "USD",
		Lines: []dispatch.OrderLine{{
			ProductID: uuid.New(),
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("9.99"),
		}},
	}})
}

func buildMessage(t *testing.T, kind string, data any) *gcppubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       payload,
		Attributes: map[string]string{"event_type": kind},
	}
}

func resultWith(err error) dispatch.Result {
	return dispatch.Result{Outcomes: map[uuid.UUID]dispatch.Outcome{
		uuid.New(): {SupplierOrderID: "S-1", Err: err},
	}}
}

func newTestConsumer(d *stubDispatcher, manager *stubManager) *Consumer {
	return &Consumer{
		decoders:   NewDecoders(),
		dispatcher: d,
		manager:    manager,
		logg:       logger.New(logger.Options{ServiceName: "orderevents-test"}),
	}
}

type stubDispatcher struct {
	result     dispatch.Result
	err        error
	dispatched []dispatch.Order
	cancelled  []string
}

func (d *stubDispatcher) Dispatch(ctx context.Context, order dispatch.Order) (dispatch.Result, error) {
	d.dispatched = append(d.dispatched, order)
	return d.result, d.err
}

func (d *stubDispatcher) Cancel(ctx context.Context, localOrderID string) (dispatch.CancelResult, error) {
	d.cancelled = append(d.cancelled, localOrderID)
	return dispatch.CancelResult{LocalOrderID: localOrderID}, d.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}
