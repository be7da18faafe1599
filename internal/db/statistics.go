package db

import "time"

// Statistics is the aggregated view of a finished run.
type Statistics struct {
	Results []*Result

	Total       int
	Passed      int
	Failed      int
	SuccessRate float64

	FailedChecks []*Result

	Fatal bool

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// AllPassed reports whether the run should exit successfully.
func (s *Statistics) AllPassed() bool {
	return s.Total > 0 && s.Failed == 0 && !s.Fatal
}

func (db *DB) GetStatistics() *Statistics {
	results := db.Results()

	db.Lock()
	startedAt, finishedAt := db.startedAt, db.finishedAt
	db.Unlock()

	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	s := &Statistics{
		Results:    results,
		Total:      len(results),
		Fatal:      db.fatal,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
	}

	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
			s.FailedChecks = append(s.FailedChecks, r)
		}
	}

	s.SuccessRate = CalculatePercentage(s.Passed, s.Total)

	return s
}
