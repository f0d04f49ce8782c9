package model

import "time"

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

const (
	AuditActionUpload          = "upload"
	AuditActionSoftDelete      = "soft_delete"
	AuditActionPermanentDelete = "permanent_delete"
	AuditActionRestore         = "restore"
	AuditActionMove            = "move"
	AuditActionChecksum        = "checksum"
	AuditActionPurge           = "purge"
)

type AuditEvent struct {
	UserID    string         `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
}
