package models

import (
	"fmt"
	"time"
)

// SyncState is what a polling consumer sees: the latest records plus
// loading/error/staleness information.
type SyncState struct {
	Records     []Alert // newest first
	IsLoading   bool
	Error       string // empty when the last cycle succeeded
	LastUpdated time.Time
}

// HasData reports whether at least one fetch cycle has succeeded.
// An empty Records slice with HasData()==true means the store is empty,
// not that it is unreachable.
func (s SyncState) HasData() bool {
	return !s.LastUpdated.IsZero()
}

// IsStale reports whether the records are older than maxAge
func (s SyncState) IsStale(now time.Time, maxAge time.Duration) bool {
	if !s.HasData() {
		return true
	}
	return now.Sub(s.LastUpdated) > maxAge
}

// Clone returns a copy whose Records slice does not alias the original
func (s SyncState) Clone() SyncState {
	out := s
	if s.Records != nil {
		out.Records = make([]Alert, len(s.Records))
		copy(out.Records, s.Records)
	}
	return out
}

func formatCoords(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lng)
}
