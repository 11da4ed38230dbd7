package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

const maxErrorBody = 512

// HTTPGateway speaks generic JSON over HTTP for the rest_flat and
// rest_nested families.
type HTTPGateway struct {
	client  *http.Client
	baseURL *url.URL
	cfg     Config
	token   string
}

// NewHTTPGateway builds a gateway from a supplier transport config.
func NewHTTPGateway(cfg Config, client *http.Client, timeout time.Duration) (*HTTPGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base_url is required").
			WithDetails(map[string]any{"transport_config": "base_url is required"})
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base_url must be an absolute url").
			WithDetails(map[string]any{"transport_config": "base_url must be an absolute url"})
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout(timeout)}
	}
	if cfg.OrdersPath == "" {
		cfg.OrdersPath = defaultOrdersPath
	}
	if cfg.StockPath == "" {
		cfg.StockPath = defaultStockPath
	}
	if cfg.OrderIDField == "" {
		cfg.OrderIDField = defaultOrderIDField
	}
	if cfg.QuantityField == "" {
		cfg.QuantityField = defaultQuantityField
	}
	return &HTTPGateway{client: client, baseURL: base, cfg: cfg, token: cfg.Token()}, nil
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, p payload.Payload) (string, json.RawMessage, error) {
	if p == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeMapping, "payload is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeMapping, err, "encode payload")
	}

	raw, err := g.do(ctx, "create_order", http.MethodPost, g.cfg.OrdersPath, body, p.Reference())
	if err != nil {
		return "", nil, err
	}
	id, err := stringField(raw, g.cfg.OrderIDField)
	if err != nil {
		return "", raw, transportError("create_order", err, map[string]any{"field": g.cfg.OrderIDField})
	}
	return id, raw, nil
}

func (g *HTTPGateway) FetchStock(ctx context.Context, sku string) (int, error) {
	path := strings.ReplaceAll(g.cfg.StockPath, "{sku}", url.PathEscape(sku))
	raw, err := g.do(ctx, "fetch_stock", http.MethodGet, path, nil, "")
	if err != nil {
		return 0, err
	}
	qty, err := intField(raw, g.cfg.QuantityField)
	if err != nil {
		return 0, transportError("fetch_stock", err, map[string]any{"field": g.cfg.QuantityField, "sku": sku})
	}
	if qty < 0 {
		qty = 0
	}
	return qty, nil
}

// CancelOrder is available only when the supplier config names a cancel path.
func (g *HTTPGateway) CancelOrder(ctx context.Context, supplierOrderID string) error {
	if g.cfg.CancelPath == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier does not support cancellation")
	}
	path := strings.ReplaceAll(g.cfg.CancelPath, "{id}", url.PathEscape(supplierOrderID))
	_, err := g.do(ctx, "cancel_order", http.MethodPost, path, nil, supplierOrderID)
	return err
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, body []byte, idempotencyKey string) (json.RawMessage, error) {
	target := g.baseURL.String() + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, transportError(op, err, nil)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(op, err, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err, map[string]any{"status": resp.StatusCode})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, pkgerrors.New(pkgerrors.CodeTransport, fmt.Sprintf("%s returned status %d", op, resp.StatusCode)).
			WithDetails(map[string]any{"op": op, "status": resp.StatusCode, "body": snippet})
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(respBody) {
		return nil, pkgerrors.New(pkgerrors.CodeTransport, op+" returned invalid json").
			WithDetails(map[string]any{"op": op, "status": resp.StatusCode})
	}
	return json.RawMessage(respBody), nil
}

func stringField(raw json.RawMessage, field string) (string, error) {
	value, err := lookup(raw, field)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("response field %q is empty", field)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("response field %q is not a string", field)
	}
}

func intField(raw json.RawMessage, field string) (int, error) {
	value, err := lookup(raw, field)
	if err != nil {
		return 0, err
	}
	num, ok := value.(json.Number)
	if !ok {
		return 0, fmt.Errorf("response field %q is not a number", field)
	}
	if i, err := num.Int64(); err == nil {
		if i > math.MaxInt || i < math.MinInt {
			return 0, fmt.Errorf("response field %q is out of range", field)
		}
		return int(i), nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("response field %q is out of range", field)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("response field %q is not an integer", field)
	}
	if f < float64(math.MinInt) || f >= float64(math.MaxInt) {
		return 0, fmt.Errorf("response field %q is out of range", field)
	}
	return int(f), nil
}

// lookup resolves a dotted path such as "data.quantity".
func lookup(raw json.RawMessage, path string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	current := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response field %q not found", path)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("response field %q not found", path)
		}
	}
	return current, nil
}
