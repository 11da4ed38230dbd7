package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

// Gateway submits orders to one supplier and reads its stock.
type Gateway interface {
	CreateOrder(ctx context.Context, p payload.Payload) (supplierOrderID string, raw json.RawMessage, err error)
	FetchStock(ctx context.Context, sku string) (int, error)
}

// Canceler is implemented by gateways that can cancel a submitted order.
type Canceler interface {
	CancelOrder(ctx context.Context, supplierOrderID string) error
}

// Config is the per-supplier transport_config document.
type Config struct {
	BaseURL        string `json:"base_url,omitempty"`
	OrdersPath     string `json:"orders_path,omitempty"`
	StockPath      string `json:"stock_path,omitempty"`
	CancelPath     string `json:"cancel_path,omitempty"`
	OrderIDField   string `json:"order_id_field,omitempty"`
	QuantityField  string `json:"quantity_field,omitempty"`
	TokenEnv       string `json:"token_env,omitempty"`
	LocationID     string `json:"location_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

const (
	defaultOrdersPath    = "/orders"
	defaultStockPath     = "/stock/{sku}"
	defaultOrderIDField  = "id"
	defaultQuantityField = "quantity"
)

// ParseConfig decodes a stored transport_config. Unknown keys are rejected.
func ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transport config: %v", err)).
			WithDetails(map[string]any{"transport_config": err.Error()})
	}
	if cfg.TimeoutSeconds < 0 {
		return cfg, pkgerrors.New(pkgerrors.CodeValidation, "timeout_seconds must be >= 0").
			WithDetails(map[string]any{"transport_config": "timeout_seconds must be >= 0"})
	}
	return cfg, nil
}

// Token resolves the bearer token referenced by TokenEnv.
func (c Config) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.TokenEnv))
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return fallback
}

// transportError wraps err as TRANSPORT_ERROR, keeping deadline failures
// distinguishable through the details.
func transportError(op string, err error, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["op"] = op
	if errors.Is(err, context.DeadlineExceeded) {
		details["timeout"] = true
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransport, err, op+" failed").WithDetails(details)
}
