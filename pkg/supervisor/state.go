package supervisor

import (
	"time"
)

// RunState is the progress of one run attempt. Only the supervisor mutates it.
type RunState struct {
	Total     int
	Done      int
	StartTime time.Time

	// Errors lists the ids of failed items in worklist order
	Errors []string
}

func newRunState(total int, start time.Time) *RunState {
	return &RunState{Total: total, StartTime: start}
}

// advance records one more processed item. Done never exceeds Total.
func (s *RunState) advance() {
	if s.Done < s.Total {
		s.Done++
	}
}

// Summary is the outcome of a completed run, also written as the JSON report.
type Summary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Skipped   int           `json:"skipped"`
	Exported  int           `json:"exported"`
	Failed    []string      `json:"failed"`
	Packed    int           `json:"packed"`
	Archives  []string      `json:"archives"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether every item ended up exported.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0
}
