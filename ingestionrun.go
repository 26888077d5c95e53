package threatdex

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// IngestionRun is the audit record for a single scheduled job invocation.
//
// A run is created when the job starts and finalized exactly once when the
// job ends, whatever the outcome. Failed jobs record an error message;
// cancelled jobs are recorded as failed with reason "cancelled".
type IngestionRun struct {
	ID  int64     `json:"id"`
	Ref uuid.UUID `json:"ref"`

	// Source is the source tag or job name this run belongs to.
	Source string `json:"source"`
	Status string `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Duration    float64    `json:"duration_seconds"`

	RecordsFetched  int64 `json:"records_fetched"`
	RecordsInserted int64 `json:"records_inserted"`
	RecordsUpdated  int64 `json:"records_updated"`
	RecordsFailed   int64 `json:"records_failed"`

	ErrorMessage string `json:"error_message,omitempty"`
	// Config is the job argument set, serialized for the audit trail.
	Config map[string]string `json:"config,omitempty"`
}
