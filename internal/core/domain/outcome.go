package domain

import "time"

type OutcomeStatus string

const (
	OutcomeProcessed   OutcomeStatus = "processed"
	OutcomeQuarantined OutcomeStatus = "quarantined"
	OutcomeRecovered   OutcomeStatus = "recovered"
)

// Outcome is the terminal result of one submission attempt.
type Outcome struct {
	Watcher   string        `json:"watcher"`
	Source    string        `json:"source"`
	Code      string        `json:"codigo"`
	Status    OutcomeStatus `json:"status"`
	Failure   string        `json:"failure,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
