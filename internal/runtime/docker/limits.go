package docker

import "github.com/Acteus/Base-ML-Platform/internal/domain/execution"

func normalizeLimits(l execution.RunLimits) execution.RunLimits {
	if l.TimeLimit < 0 {
		l.TimeLimit = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	return l
}

// effectiveLimits overlays request limits on the engine defaults. The time
// limit is never zero: every run is bounded.
func effectiveLimits(defaults, request execution.RunLimits) execution.RunLimits {
	effective := normalizeLimits(defaults)
	overrides := normalizeLimits(request)

	if overrides.TimeLimit > 0 {
		effective.TimeLimit = overrides.TimeLimit
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}
	if effective.TimeLimit == 0 {
		effective.TimeLimit = execution.DefaultTimeLimit
	}

	return effective
}
