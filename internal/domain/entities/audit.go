package entities

import "time"

// AuditEntry records an ingestion decision taken for a fact.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	FactID    string         `json:"fact_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
