package idemflow

import (
	"slices"
	"time"
)

// StrategyKind selects when checkpoints are taken
type StrategyKind string

const (
	StrategyAfterEachNode      StrategyKind = "AFTER_EACH_NODE"
	StrategyCriticalPointsOnly StrategyKind = "CRITICAL_POINTS_ONLY"
	StrategyTimeBased          StrategyKind = "TIME_BASED"
	StrategyAdaptive           StrategyKind = "ADAPTIVE"
)

// CheckpointStrategy is the policy a workflow driver consults after each node.
// Only the fields of the selected Kind are meaningful.
type CheckpointStrategy struct {
	Kind StrategyKind

	// CRITICAL_POINTS_ONLY
	CriticalNodes []string

	// TIME_BASED
	Interval time.Duration

	// ADAPTIVE
	Base           *CheckpointStrategy
	MLOptimization bool
}

// Decision carries what a strategy needs to decide on a checkpoint
type Decision struct {
	Node             string
	LastCheckpointAt time.Time
	Now              time.Time
}

// AfterEachNode checkpoints after every node
func AfterEachNode() CheckpointStrategy {
	return CheckpointStrategy{Kind: StrategyAfterEachNode}
}

// CriticalPointsOnly checkpoints only after the named nodes
func CriticalPointsOnly(nodes ...string) CheckpointStrategy {
	return CheckpointStrategy{Kind: StrategyCriticalPointsOnly, CriticalNodes: nodes}
}

// TimeBased checkpoints when interval has elapsed since the previous checkpoint
func TimeBased(interval time.Duration) CheckpointStrategy {
	return CheckpointStrategy{Kind: StrategyTimeBased, Interval: interval}
}

// Adaptive wraps base. The ML flag is recorded but does not change decisions.
func Adaptive(base *CheckpointStrategy, mlOptimization bool) CheckpointStrategy {
	return CheckpointStrategy{Kind: StrategyAdaptive, Base: base, MLOptimization: mlOptimization}
}

// ShouldCheckpoint reports whether a checkpoint should be taken for d
func (s CheckpointStrategy) ShouldCheckpoint(d Decision) bool {
	switch s.Kind {
	case StrategyCriticalPointsOnly:
		return slices.Contains(s.CriticalNodes, d.Node)
	case StrategyTimeBased:
		if d.LastCheckpointAt.IsZero() {
			return true
		}
		return d.Now.Sub(d.LastCheckpointAt) >= s.Interval
	case StrategyAdaptive:
		if s.Base == nil {
			return true
		}
		return s.Base.ShouldCheckpoint(d)
	default:
		return true
	}
}

// Validate checks the strategy for values that cannot be honoured
func (s CheckpointStrategy) Validate() error {
	switch s.Kind {
	case StrategyAfterEachNode, "":
		return nil
	case StrategyCriticalPointsOnly:
		if len(s.CriticalNodes) == 0 {
			return NewValidationError("critical-points strategy needs at least one node")
		}
	case StrategyTimeBased:
		if s.Interval <= 0 {
			return NewValidationError("time-based strategy needs a positive interval")
		}
	case StrategyAdaptive:
		if s.Base != nil {
			return s.Base.Validate()
		}
	default:
		return NewValidationError("unknown checkpoint strategy " + string(s.Kind))
	}
	return nil
}
