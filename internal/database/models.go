package database

// Run statuses, one terminal transition out of "running" per run.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// StatusPending is the status newly scraped authorizations carry.
const StatusPending = "Pending"

// Authorization is a durable patient authorization record. AuthNumber is the
// natural unique key; scrape-driven upserts converge on it.
type Authorization struct {
	ID             int64  `json:"id"`
	PatientName    string `json:"patient_name"`
	AuthNumber     string `json:"auth_number"`
	Status         string `json:"status"`
	ManuallyEdited bool   `json:"manually_edited"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// AuthorizationPatch is a partial update applied through the manual-edit path.
// Nil fields are left untouched.
type AuthorizationPatch struct {
	PatientName *string `json:"patient_name"`
	AuthNumber  *string `json:"auth_number"`
	Status      *string `json:"status"`
}

// ScrapeRun is one row of the append-only run ledger.
type ScrapeRun struct {
	ID              int64    `json:"id"`
	StartedAt       string   `json:"started_at"`
	CompletedAt     *string  `json:"completed_at"`
	DurationSeconds *float64 `json:"duration_seconds"`
	RecordsFound    int      `json:"records_found"`
	RecordsSaved    int      `json:"records_saved"`
	Status          string   `json:"status"`
	ErrorMessage    *string  `json:"error_message"`
}
