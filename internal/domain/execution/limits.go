package execution

import "time"

// DefaultTimeLimit is the budget applied when neither the request nor the
// runtime configuration sets one.
const DefaultTimeLimit = 30 * time.Second

// RunLimits describes optional resource boundaries for a single script execution.
//
// A zero value RunLimits defers to the runtime defaults.
type RunLimits struct {
	// TimeLimit caps how long the script is allowed to run.
	TimeLimit time.Duration
	// MemoryLimitBytes caps the sandbox memory usage in bytes. Zero means no limit.
	MemoryLimitBytes int64
}
