package scheduler

import (
	"time"

	"github.com/aristath/tascade/internal/task"
)

// Confidence tiers for Estimate, by number of historical samples.
const (
	ConfidenceLow    = "low"    // fewer than 5 samples
	ConfidenceMedium = "medium" // 5 to 9
	ConfidenceHigh   = "high"   // 10 or more
)

// Estimate projects the remaining effort from past executions.
// Averages and totals are in seconds and are nil without historical data.
type Estimate struct {
	HasHistoricalData        bool       `json:"has_historical_data"`
	PendingTasks             int        `json:"pending_tasks"`
	SampleCount              int        `json:"sample_count"`
	AverageCompletionSeconds *float64   `json:"average_completion_time"`
	EstimatedTotalSeconds    *float64   `json:"estimated_total_time"`
	EstimatedCompletionAt    *time.Time `json:"estimated_completion_date"`
	Confidence               string     `json:"confidence"`
}

// EstimateCompletionTime multiplies the mean recorded execution time of done
// tasks by the number of pending tasks.
func EstimateCompletionTime(tasks map[string]*task.Task, now time.Time) Estimate {
	var (
		total   float64
		samples int
		pending int
	)

	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending:
			pending++
		case task.StatusDone:
			if spent, ok := timeSpent(t); ok {
				total += spent
				samples++
			}
		}
	}

	est := Estimate{
		PendingTasks: pending,
		SampleCount:  samples,
		Confidence:   ConfidenceLow,
	}
	if samples == 0 {
		return est
	}

	avg := total / float64(samples)
	remaining := avg * float64(pending)
	at := now.Add(time.Duration(remaining * float64(time.Second)))

	est.HasHistoricalData = true
	est.AverageCompletionSeconds = &avg
	est.EstimatedTotalSeconds = &remaining
	est.EstimatedCompletionAt = &at

	switch {
	case samples >= 10:
		est.Confidence = ConfidenceHigh
	case samples >= 5:
		est.Confidence = ConfidenceMedium
	}
	return est
}

func timeSpent(t *task.Task) (float64, bool) {
	ec := t.ExecutionContext
	if ec == nil || ec.Metrics == nil || ec.Metrics.TimeSpent == nil {
		return 0, false
	}
	return *ec.Metrics.TimeSpent, true
}
