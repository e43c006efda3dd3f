// Package store keeps evaluation records: the outcome of a run together
// with the metadata needed to list and audit it.
package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Record statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one stored evaluation run. Outcome holds the encoded result
// exactly as it was returned to the caller.
type Record struct {
	ID                string          `json:"id"`
	RFQID             string          `json:"rfq_id,omitempty"`
	Fingerprint       string          `json:"fingerprint"`
	Status            string          `json:"status"`
	BidCount          int             `json:"bid_count"`
	RecommendedBidID  string          `json:"recommended_bid_id,omitempty"`
	NoCompliantVendor bool            `json:"no_compliant_vendor"`
	WarningCount      int             `json:"warning_count"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	DurationMs        int64           `json:"duration_ms"`
	Outcome           json.RawMessage `json:"outcome,omitempty"`
}

// Summary is the record without its outcome, as shown in listings.
func (r *Record) Summary() Record {
	s := *r
	s.Outcome = nil
	return s
}

// recordIDRegex accepts UUIDs and other simple tokens usable as file names.
var recordIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateID checks that id is safe to use as a storage key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if !recordIDRegex.MatchString(id) {
		return fmt.Errorf("record id %q must be alphanumeric with hyphens or underscores, at most 64 characters", id)
	}
	return nil
}

// Validate validates the record.
func (r *Record) Validate() error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	switch r.Status {
	case StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown record status %q", r.Status)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("record %s has no creation time", r.ID)
	}
	return nil
}
