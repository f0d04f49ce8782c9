package model

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusPartial   = "partial"
	JobStatusFailed    = "failed"
)

type JobData struct {
	JobID            string           `json:"job_id"`
	UserID           string           `json:"user_id"`
	Status           string           `json:"status"`
	TotalItems       int              `json:"total_items"`
	BytesPlanned     int64            `json:"bytes_planned"`
	BytesTransferred int64            `json:"bytes_transferred"`
	Progress         int              `json:"progress"`
	CreatedAt        string           `json:"created_at"`
	StartedAt        string           `json:"started_at,omitempty"`
	FinishedAt       string           `json:"finished_at,omitempty"`
	Error            string           `json:"error,omitempty"`
	Report           *MoveBatchReport `json:"report,omitempty"`
}

type JobProgress struct {
	JobID            string `json:"job_id"`
	BytesTransferred int64  `json:"bytes_transferred"`
	Progress         int    `json:"progress"`
}
