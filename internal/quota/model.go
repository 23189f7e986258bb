package quota

import "time"

const dateLayout = "2006-01-02"

// Record is the per-user daily free-tier usage.
type Record struct {
	Used          int    `json:"quota_used"`
	LastResetDate string `json:"last_reset_date"`
}

// resetIfStale zeroes Used when the record belongs to another day.
// Returns true if the record changed.
func (r *Record) resetIfStale(today string) bool {
	if r.LastResetDate == today {
		return false
	}
	r.Used = 0
	r.LastResetDate = today
	return true
}

// Status is the API response showing current quota usage and limits.
type Status struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	ResetsAt  time.Time `json:"resets_at"`
}
