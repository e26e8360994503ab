package types

import "time"

// Confirmation records that a user vouches for a risk area.
// The (RiskAreaID, UserID) pair is unique.
type Confirmation struct {
	ID         string    `json:"id" db:"id"`
	RiskAreaID string    `json:"risk_area_id" db:"risk_area_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Severity is the map severity bucket derived from a confirmation count.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityForCount buckets a confirmation count using the thresholds the map
// view renders: more than 10 is high, more than 5 medium, any confirmation low.
func SeverityForCount(count int64) Severity {
	switch {
	case count > 10:
		return SeverityHigh
	case count > 5:
		return SeverityMedium
	case count > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}
