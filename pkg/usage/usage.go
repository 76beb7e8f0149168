package usage

import "time"

// Record is one appended token-usage row. Records are written once and
// never mutated or deleted by this service; they exist for reporting only
// and are never consulted for admission control.
type Record struct {
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Tokens    int            `json:"tokens"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Total is the summed token count for one provider/model pair.
type Total struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Tokens   int64  `json:"tokens"`
}

// Recorder persists usage records and backs the usage dashboard queries.
type Recorder interface {
	Append(rec Record) error
	// Last returns the most recent record, with false when none exist.
	Last() (Record, bool, error)
	// Totals returns summed tokens grouped by provider and model.
	Totals() ([]Total, error)
}
