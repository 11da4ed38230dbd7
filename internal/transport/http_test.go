package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

func flatPayload() *payload.FlatOrderPayload {
	return &payload.FlatOrderPayload{
		OrderReference: "L-1",
		Currency:       "USD",
		Items:          []payload.FlatItem{{SKU: "A", Quantity: 1, UnitPrice: "2.00"}},
	}
}

func TestHTTPGatewayCreateOrder(t *testing.T) {
	t.Setenv("ACME_TOKEN", "secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "L-1" {
			t.Errorf("idempotency key = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var decoded payload.FlatOrderPayload
		if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Items) != 1 || decoded.Items[0].SKU != "A" {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_id":"SUP-1"}}`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL + "/v1/", OrderIDField: "data.order_id", TokenEnv: "ACME_TOKEN"}, srv.Client(), time.Second)
	require.NoError(t, err)

	id, raw, err := gw.CreateOrder(context.Background(), flatPayload())
	require.NoError(t, err)
	require.Equal(t, "SUP-1", id)
	require.JSONEq(t, `{"data":{"order_id":"SUP-1"}}`, string(raw))
}

func TestHTTPGatewayNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL}, srv.Client(), time.Second)
	require.NoError(t, err)

	_, _, err = gw.CreateOrder(context.Background(), flatPayload())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransport))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, http.StatusInternalServerError, details["status"])
}

func TestHTTPGatewayDeadlineIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL}, srv.Client(), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err = gw.CreateOrder(ctx, flatPayload())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransport))
	require.Equal(t, true, pkgerrors.As(err).Details().(map[string]any)["timeout"])
}

func TestHTTPGatewayMissingOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL}, srv.Client(), time.Second)
	require.NoError(t, err)
	_, raw, err := gw.CreateOrder(context.Background(), flatPayload())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransport))
	require.NotEmpty(t, raw)
}

func TestHTTPGatewayFetchStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/inventory/SKU%2F1" {
			t.Errorf("path = %q", got)
		}
		_, _ = w.Write([]byte(`{"quantity": 17}`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL, StockPath: "/inventory/{sku}"}, srv.Client(), time.Second)
	require.NoError(t, err)
	qty, err := gw.FetchStock(context.Background(), "SKU/1")
	require.NoError(t, err)
	require.Equal(t, 17, qty)
}

func TestHTTPGatewayFetchStockRejectsNonIntegerQuantities(t *testing.T) {
	cases := map[string]struct {
		body string
		want int
		ok   bool
	}{
		"integral float": {body: `{"quantity": 4.0}`, want: 4, ok: true},
		"fraction":       {body: `{"quantity": 2.7}`},
		"huge":           {body: `{"quantity": 1e30}`},
		"overflow":       {body: `{"quantity": 99999999999999999999}`},
		"string":         {body: `{"quantity": "7"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gw, err := NewHTTPGateway(Config{BaseURL: srv.URL, StockPath: "/inventory/{sku}"}, srv.Client(), time.Second)
			require.NoError(t, err)
			qty, err := gw.FetchStock(context.Background(), "A")
			if tc.ok {
				require.NoError(t, err)
				require.Equal(t, tc.want, qty)
				return
			}
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransport), "got %v", err)
		})
	}
}

func TestHTTPGatewayCancelOrder(t *testing.T) {
	var hit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(Config{BaseURL: srv.URL, CancelPath: "/orders/{id}/cancel"}, srv.Client(), time.Second)
	require.NoError(t, err)
	require.NoError(t, gw.CancelOrder(context.Background(), "SUP-9"))
	require.Equal(t, "/orders/SUP-9/cancel", hit)

	noCancel, err := NewHTTPGateway(Config{BaseURL: srv.URL}, srv.Client(), time.Second)
	require.NoError(t, err)
	require.True(t, pkgerrors.IsCode(noCancel.CancelOrder(context.Background(), "x"), pkgerrors.CodeValidation))
}

func TestNewHTTPGatewayRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(Config{}, nil, time.Second)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = NewHTTPGateway(Config{BaseURL: "not a url"}, nil, time.Second)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	cfg, err := ParseConfig(json.RawMessage(`{"base_url":"https://x.test","timeout_seconds":5}`))
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.timeout(time.Second))

	_, err = ParseConfig(json.RawMessage(`{"password":"x"}`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseConfig(json.RawMessage(`{"timeout_seconds":-1}`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
