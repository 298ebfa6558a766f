package pressure

// Tier classifies sampled resource usage. Tiers are ordered: a higher tier
// always means more pressure.
type Tier int

const (
	// TierNormal means every sampled value is below half its threshold.
	TierNormal Tier = iota

	// TierElevated means at least one value reached half its threshold.
	TierElevated

	// TierHigh means at least one hard threshold was reached.
	TierHigh

	// TierCritical means memory reached the critical threshold.
	TierCritical
)

// String returns a human-readable name for the tier.
func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierElevated:
		return "elevated"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Sample is one point-in-time reading of the resources the policy watches.
type Sample struct {
	// MemoryMB is the process heap usage in megabytes.
	MemoryMB int

	// ActiveWorkers is the number of workers in the active registry.
	ActiveWorkers int

	// ActiveProcesses is the number of live external subprocesses.
	ActiveProcesses int
}

// Classification is the result of evaluating a sample against thresholds.
type Classification struct {
	// Tier is the classified pressure tier.
	Tier Tier

	// Reason names the threshold that tripped, for logs and notifications.
	Reason string

	// Sample is the reading that produced this classification.
	Sample Sample
}
