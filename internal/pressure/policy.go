package pressure

import "fmt"

// Default threshold values.
const (
	defaultMaxWorkers       = 12
	defaultMaxProcesses     = 12
	defaultMemoryWarningMB  = 2048
	defaultMemoryCriticalMB = 4096
)

// Thresholds are the hard limits the classifier evaluates samples against.
// Immutable at use; swap the whole value on hot reload.
type Thresholds struct {
	// MaxConcurrentWorkers is the hard limit on active workers.
	MaxConcurrentWorkers int

	// MaxConcurrentProcesses is the hard limit on live subprocesses.
	MaxConcurrentProcesses int

	// MemoryWarningMB is the hard memory threshold for TierHigh.
	MemoryWarningMB int

	// MemoryCriticalMB is the memory threshold for TierCritical.
	MemoryCriticalMB int
}

// DefaultThresholds returns the default pressure thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxConcurrentWorkers:   defaultMaxWorkers,
		MaxConcurrentProcesses: defaultMaxProcesses,
		MemoryWarningMB:        defaultMemoryWarningMB,
		MemoryCriticalMB:       defaultMemoryCriticalMB,
	}
}

// Classify evaluates a sample against the thresholds:
// Critical when memory reaches the critical threshold; High when any hard
// threshold is reached; Elevated when any value reaches half its threshold;
// Normal otherwise.
func (t Thresholds) Classify(s Sample) Classification {
	if s.MemoryMB >= t.MemoryCriticalMB {
		return Classification{
			Tier:   TierCritical,
			Reason: fmt.Sprintf("memory %dMB >= critical %dMB", s.MemoryMB, t.MemoryCriticalMB),
			Sample: s,
		}
	}

	if s.MemoryMB >= t.MemoryWarningMB {
		return Classification{
			Tier:   TierHigh,
			Reason: fmt.Sprintf("memory %dMB >= warning %dMB", s.MemoryMB, t.MemoryWarningMB),
			Sample: s,
		}
	}
	if s.ActiveWorkers >= t.MaxConcurrentWorkers {
		return Classification{
			Tier:   TierHigh,
			Reason: fmt.Sprintf("%d active workers >= limit %d", s.ActiveWorkers, t.MaxConcurrentWorkers),
			Sample: s,
		}
	}
	if s.ActiveProcesses >= t.MaxConcurrentProcesses {
		return Classification{
			Tier:   TierHigh,
			Reason: fmt.Sprintf("%d active processes >= limit %d", s.ActiveProcesses, t.MaxConcurrentProcesses),
			Sample: s,
		}
	}

	if s.MemoryMB*2 >= t.MemoryWarningMB ||
		s.ActiveWorkers*2 >= t.MaxConcurrentWorkers ||
		s.ActiveProcesses*2 >= t.MaxConcurrentProcesses {
		return Classification{
			Tier:   TierElevated,
			Reason: "at least half of a threshold reached",
			Sample: s,
		}
	}

	return Classification{Tier: TierNormal, Reason: "below all thresholds", Sample: s}
}
