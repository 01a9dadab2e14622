package reconcile

import (
	"time"

	"github.com/BaSui01/bundlekit/manifest"
)

// Score is the override score of one identifier.
type Score struct {
	Identifier string
	Value      int
}

// Result is the outcome of a successful pass.
type Result struct {
	PassID      string
	Environment string
	Active      *ActiveSet
	// Discovered lists package identifiers in scan order.
	Discovered []string
	// Installed and Uninstalled are the batches handed to the executor.
	Installed   map[string]manifest.LifecycleAction
	Uninstalled map[string]manifest.LifecycleAction
	// Removed lists package identifiers whose persisted state was dropped.
	Removed []string
	// Scores in the order they were applied.
	Scores []Score
	// Instantiated counts classes constructed by this pass.
	Instantiated int
	Duration     time.Duration
}
