package reporting

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

const (
	JobStockSync = "stock_sync"
	JobPricing   = "pricing_optimizer"
)

// SyncRunRow summarizes one stock sync or pricing run.
type SyncRunRow struct {
	RunID      string    `bigquery:"run_id"`
	Job        string    `bigquery:"job"`
	SupplierID *string   `bigquery:"supplier_id"`
	StartedAt  time.Time `bigquery:"started_at"`
	FinishedAt time.Time `bigquery:"finished_at"`
	Examined   int       `bigquery:"examined"`
	Updated    int       `bigquery:"updated"`
	Failed     int       `bigquery:"failed"`
}

// DispatchOutcomeRow is one supplier branch of a dispatched order.
type DispatchOutcomeRow struct {
	LocalOrderID string             `bigquery:"local_order_id"`
	SupplierID   string             `bigquery:"supplier_id"`
	Outcome      string             `bigquery:"outcome"`
	ErrorCode    *string            `bigquery:"error_code"`
	SupplierRef  *string            `bigquery:"supplier_ref"`
	TotalAmount  *string            `bigquery:"total_amount"`
	LineCount    int                `bigquery:"line_count"`
	OccurredAt   time.Time          `bigquery:"occurred_at"`
	Response     cbigquery.NullJSON `bigquery:"response"`
}
