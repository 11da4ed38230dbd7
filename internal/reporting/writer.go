package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/angelmondragon/dropsync-backend/pkg/bigquery"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	SyncRunsTable         string
	DispatchOutcomesTable string
	RetryPolicy           RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryReporter streams run summaries and dispatch outcomes to BigQuery.
// Rows are inserted immediately, so it is safe for concurrent use.
type BigQueryReporter struct {
	client        tableInserter
	syncRunsTable string
	dispatchTable string
	retry         RetryPolicy
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryReporter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newReporter(client, cfg)
}

func newReporter(client tableInserter, cfg Config) (*BigQueryReporter, error) {
	syncRuns := strings.TrimSpace(cfg.SyncRunsTable)
	if syncRuns == "" {
		return nil, errors.New("sync runs table is required")
	}
	dispatch := strings.TrimSpace(cfg.DispatchOutcomesTable)
	if dispatch == "" {
		return nil, errors.New("dispatch outcomes table is required")
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &BigQueryReporter{
		client:        client,
		syncRunsTable: syncRuns,
		dispatchTable: dispatch,
		retry:         retry,
	}, nil
}

func (r *BigQueryReporter) RecordSyncRun(ctx context.Context, row SyncRunRow) error {
	return r.insertWithRetry(ctx, r.syncRunsTable, []any{&row})
}

func (r *BigQueryReporter) RecordDispatch(ctx context.Context, row DispatchOutcomeRow) error {
	return r.insertWithRetry(ctx, r.dispatchTable, []any{&row})
}

func (r *BigQueryReporter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	attempts := 0
	backoff := r.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= r.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, r.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

// EncodeJSON converts a raw supplier response into a BigQuery JSON value.
func EncodeJSON(raw json.RawMessage) cbigquery.NullJSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}
}
