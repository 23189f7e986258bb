package stats

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

func runningAverage(avg float64, count int, score float64) float64 {
	return (avg*float64(count) + score) / float64(count+1)
}

// Fold applies one attempt to rec in place.
func Fold(rec *Record, a Attempt, window int) {
	if window <= 0 {
		window = DefaultRecentWindow
	}

	rec.AverageScore = runningAverage(rec.AverageScore, rec.TotalAttempts, a.Score)
	rec.TotalAttempts++

	switch a.TaskType {
	case ai.Task1:
		rec.Task1Average = runningAverage(rec.Task1Average, rec.Task1Attempts, a.Score)
		rec.Task1Attempts++
	case ai.Task2:
		rec.Task2Average = runningAverage(rec.Task2Average, rec.Task2Attempts, a.Score)
		rec.Task2Attempts++
	}

	rec.RecentScores = append(rec.RecentScores, a.Score)
	if n := len(rec.RecentScores); n > window {
		rec.RecentScores = append([]float64(nil), rec.RecentScores[n-window:]...)
	}

	at := a.At
	if rec.LastAttemptAt == nil || at.After(*rec.LastAttemptAt) {
		rec.LastAttemptAt = &at
	}
}

// applied reports whether the attempt's entry was already folded into rec.
func applied(rec *Record, a Attempt) bool {
	return a.EntryID != uuid.Nil && slices.Contains(rec.AppliedEntries, a.EntryID)
}

func noteApplied(rec *Record, a Attempt) {
	if a.EntryID == uuid.Nil {
		return
	}
	rec.AppliedEntries = append(rec.AppliedEntries, a.EntryID)
	if n := len(rec.AppliedEntries); n > appliedWindow {
		rec.AppliedEntries = append([]uuid.UUID(nil), rec.AppliedEntries[n-appliedWindow:]...)
	}
}

// Rebuild folds attempts from an empty record in timestamp order.
func Rebuild(userID uuid.UUID, attempts []Attempt, window int) *Record {
	sorted := append([]Attempt(nil), attempts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	rec := &Record{UserID: userID, RecentScores: []float64{}}
	for _, a := range sorted {
		if applied(rec, a) {
			continue
		}
		Fold(rec, a, window)
		noteApplied(rec, a)
	}
	return rec
}

func validate(a Attempt) error {
	if a.TaskType != ai.Task1 && a.TaskType != ai.Task2 {
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidAttempt, a.TaskType)
	}
	if math.IsNaN(a.Score) || a.Score < 0 || a.Score > 9 {
		return fmt.Errorf("%w: score %v out of range", ErrInvalidAttempt, a.Score)
	}
	return nil
}

// RoundBand applies IELTS band rounding: below .25 rounds down, below .75 to
// the half band, otherwise up. Only the admin rollup uses it.
func RoundBand(score float64) float64 {
	whole := math.Floor(score)
	switch frac := score - whole; {
	case frac < 0.25:
		return whole
	case frac < 0.75:
		return whole + 0.5
	default:
		return whole + 1
	}
}
