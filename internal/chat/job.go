package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued turn request processed by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID length

	SessionID string `gorm:"size:26;index;not null" json:"session_id"`

	// Request is the JSON-encoded turn request.
	Request string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_job_idempo" json:"idempotency_key,omitempty"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded: the JSON-encoded turn response
	Result *string `gorm:"type:text" json:"-"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	Attempts int `gorm:"not null;default:0" json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
