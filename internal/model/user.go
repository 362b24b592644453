package model

import "time"

// User owns all telemetry rows. Inactive users cannot ingest or query.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential is an API key record. The plaintext token is never stored; only
// the argon2id hash survives creation.
type Credential struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            *string    `json:"name,omitempty"`
	KeyHash         string     `json:"-"`
	Scopes          []string   `json:"scopes"`
	RateLimitPerHr  *int       `json:"rate_limit_per_hour,omitempty"`
	IsActive        bool       `json:"is_active"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Expired reports whether the credential has an expiry in the past.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// HasScope reports whether the credential grants the named scope. A "*"
// scope grants everything.
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Processing status values for raw ingestions. Transitions only move
// forward; the store rejects regressions.
const (
	StatusReceived              = "received"
	StatusAcceptedForProcessing = "accepted_for_processing"
	StatusParsing               = "parsing"
	StatusProcessing            = "processing"
	StatusProcessed             = "processed"
	StatusPartialSuccess        = "partial_success"
	StatusError                 = "error"
)

// statusRank orders processing statuses for the forward-only check.
var statusRank = map[string]int{
	StatusReceived:              0,
	StatusAcceptedForProcessing: 1,
	StatusParsing:               2,
	StatusProcessing:            3,
	StatusProcessed:             4,
	StatusPartialSuccess:        4,
	StatusError:                 4,
}

// StatusAdvances reports whether moving from one status to the next is a
// legal forward transition.
func StatusAdvances(from, to string) bool {
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	return ok1 && ok2 && tr > fr
}

// RawIngestion is the audit record of one accepted payload, keyed by content
// hash for duplicate detection.
type RawIngestion struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PayloadHash      string     `json:"payload_hash"`
	PayloadSizeBytes int64      `json:"payload_size_bytes"`
	RawPayload       []byte     `json:"-"`
	ProcessingStatus string     `json:"processing_status"`
	ProcessingErrors *string    `json:"processing_errors,omitempty"`
	ReceivedAt       time.Time  `json:"received_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}
