package collectors

import (
	"context"

	"scholar-trace/models"
)

// Target is one unit of collection work inside a run, typically a program
// code, a subject query or a record URL.
type Target struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// Collector is the interface every source adapter implements. Targets
// supplies the work list for one run; a Targets error is run-fatal.
// Fetch obtains zero or more normalized candidate records for a single
// target and must honor the context deadline.
type Collector interface {
	// Name returns the unique source tag (e.g. "govapi").
	Name() string

	// Targets lists the units of work for the next run.
	Targets(ctx context.Context) ([]Target, error)

	// Fetch collects candidate records for one target.
	Fetch(ctx context.Context, target Target) ([]models.Candidate, error)
}
