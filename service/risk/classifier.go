// Package risk implements the pure, deterministic action risk classifier.
// Classification performs no I/O; the lock manager and the passive consensus
// manager both consume its output.
package risk

import (
	"fmt"

	"github.com/mossdao/gavel/model/action"
)

// Lock and upgrade thresholds on the total penalty score.
const (
	// LockPenaltyThreshold locks any action whose total penalty sinks to or
	// below it, regardless of base risk level.
	LockPenaltyThreshold = -50
	// MidPenaltyThreshold upgrades LOW to MID.
	MidPenaltyThreshold = -30
)

// Classification is the classifier verdict for one action.
type Classification struct {
	Level        action.RiskLevel `json:"riskLevel"`
	TotalPenalty int              `json:"totalPenalty"`
	ShouldLock   bool             `json:"shouldLock"`
	Reason       string           `json:"reason"`
}

// Classifier maps action kinds and penalty factors to risk tiers and lock
// decisions. The zero value is usable.
type Classifier struct{}

// New creates a classifier.
func New() *Classifier { return &Classifier{} }

// Classify returns the risk verdict for actionType with the given penalty.
// shouldLock is the logical OR of "base risk is HIGH" and "total penalty at
// or below the lock threshold".
func (c *Classifier) Classify(actionType action.Type, penalty action.Penalty) *Classification {
	base := actionType.BaseRisk()
	total := penalty.Total()
	shouldLock := base == action.RiskHigh || total <= LockPenaltyThreshold

	reason := fmt.Sprintf("base risk %s", base)
	switch {
	case base == action.RiskHigh && total <= LockPenaltyThreshold:
		reason = fmt.Sprintf("base risk HIGH and total penalty %d at lock threshold", total)
	case base == action.RiskHigh:
		reason = "base risk HIGH is irrevocable by default"
	case total <= LockPenaltyThreshold:
		reason = fmt.Sprintf("total penalty %d at or below %d", total, LockPenaltyThreshold)
	}

	return &Classification{
		Level:        c.EffectiveRiskLevel(actionType, penalty),
		TotalPenalty: total,
		ShouldLock:   shouldLock,
		Reason:       reason,
	}
}

// IsHighRisk reports whether the action type's base risk level is HIGH.
func (c *Classifier) IsHighRisk(actionType action.Type) bool {
	return actionType.BaseRisk() == action.RiskHigh
}

// HighRiskActions lists every action type whose base risk level is HIGH.
func (c *Classifier) HighRiskActions() []action.Type {
	var out []action.Type
	for _, t := range action.Types() {
		if t.BaseRisk() == action.RiskHigh {
			out = append(out, t)
		}
	}
	return out
}

// EffectiveRiskLevel upgrades the base level by penalty severity: LOW becomes
// MID at the mid threshold and anything becomes HIGH at the lock threshold.
// A base HIGH is never downgraded.
func (c *Classifier) EffectiveRiskLevel(actionType action.Type, penalty action.Penalty) action.RiskLevel {
	base := actionType.BaseRisk()
	if base == action.RiskHigh {
		return action.RiskHigh
	}
	total := penalty.Total()
	if total <= LockPenaltyThreshold {
		return action.RiskHigh
	}
	if base == action.RiskLow && total <= MidPenaltyThreshold {
		return action.RiskMid
	}
	return base
}
