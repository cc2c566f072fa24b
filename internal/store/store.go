// Package store implements the persistence boundary: Postgres/PostGIS for
// production, an in-memory store for tests and local development, and a
// device-local SQLite file for the tracking preference flag.
package store

import (
	"errors"
	"time"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrPendingVisitExists is returned when an agent already has an open visit
	ErrPendingVisitExists = errors.New("agent already has a pending visit")
	// ErrInvalidPenalty is returned for negative penalty amounts
	ErrInvalidPenalty = errors.New("penalty amount must not be negative")
)

// DefaultTrustScore is the score of an agent with no trust record
const DefaultTrustScore = 100

// PenaltyReason renders the audit reason once the old and new scores are known.
type PenaltyReason func(oldScore, newScore int) string

func clampPenalty(score, amount int) int {
	next := score - amount
	if next < 0 {
		return 0
	}
	return next
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func staleLiveWrite(cur models.LivePosition, pos *models.Position, at time.Time) bool {
	if cur.UpdatedAt.After(at) {
		return true
	}
	return cur.UpdatedAt.Equal(at) && cur.Position == nil && pos != nil
}
