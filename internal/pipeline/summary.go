package pipeline

import "time"

// Failure names a record that did not make it into this run's output
type Failure struct {
	Key     string `json:"key"`
	Outcome string `json:"outcome"`
	Error   string `json:"error"`
}

// Summary reports what a run did
type Summary struct {
	RunID        string        `json:"run_id"`
	Mode         string        `json:"mode"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	Records      int           `json:"records"`
	Matched      int           `json:"matched"`
	Synthetic    int           `json:"synthetic"`
	Selected     int           `json:"selected"`
	Skipped      int           `json:"skipped"`
	Enriched     int           `json:"enriched"`
	Rejected     int           `json:"rejected"`
	Skeleton     int           `json:"skeleton"`
	OracleFailed int           `json:"oracle_failed"`
	Failed       int           `json:"failed"`
	Persisted    int           `json:"persisted"`
	Flushes      int           `json:"flushes"`
	FlushErrors  int           `json:"flush_errors"`
	SnapshotSize int           `json:"snapshot_size"`
	Failures     []Failure     `json:"failures,omitempty"`
}

// OracleCalls is the number of records that reached the generation step
func (s *Summary) OracleCalls() int {
	return s.Enriched + s.OracleFailed
}

func (s *Summary) count(r *recordResult) {
	switch r.outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeEnriched:
		s.Enriched++
	case OutcomeRejected:
		s.Rejected++
	case OutcomeSkeleton:
		s.Skeleton++
	case OutcomeOracleFailed:
		s.OracleFailed++
	default:
		s.Failed++
	}
	if r.err != nil {
		s.Failures = append(s.Failures, Failure{
			Key:     r.record.Key().String(),
			Outcome: r.outcome.String(),
			Error:   r.err.Error(),
		})
	}
}
