package indicator

import (
	"time"

	"github.com/google/uuid"
)

// SourceResult is one center's contribution to an indicator. Err set means
// the center failed or timed out; Value and Population are then zero so the
// failure never distorts the aggregate.
type SourceResult struct {
	SourceID   string  `json:"source_id"`
	Source     string  `json:"source"`
	Value      float64 `json:"value"`
	Population float64 `json:"population"`
	Err        string  `json:"error,omitempty"`
}

// Result is one indicator aggregated across every selected center.
type Result struct {
	IDCode          string         `json:"id_code"`
	Categoria       string         `json:"categoria,omitempty"`
	Label           string         `json:"label,omitempty"`
	Unit            string         `json:"unit,omitempty"`
	Err             string         `json:"error,omitempty"`
	PerSource       []SourceResult `json:"per_source"`
	TotalValue      float64        `json:"total_value"`
	TotalPopulation float64        `json:"total_population"`
}

// Run is one batch execution over a reporting period.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Sources    []string  `json:"sources"`
	Indicators []Result  `json:"indicators"`
	CreatedAt  time.Time `json:"created_at"`
}
