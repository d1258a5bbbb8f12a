package lock

import (
	"fmt"

	"github.com/mossdao/gavel/model/action"
)

// TimeoutAction controls what happens to a lock whose deadline passed
// without the required approvals.
type TimeoutAction string

const (
	TimeoutAutoApprove TimeoutAction = "auto_approve"
	TimeoutEscalate    TimeoutAction = "escalate"
	TimeoutReject      TimeoutAction = "reject"
)

// TierPolicy holds the per risk tier lock settings.
type TierPolicy struct {
	TimeoutHours int           `yaml:"timeoutHours" json:"timeoutHours"`
	OnTimeout    TimeoutAction `yaml:"onTimeout" json:"onTimeout"`
}

// Config defines lock manager settings.
type Config struct {
	Tiers       map[action.RiskLevel]TierPolicy `yaml:"tiers" json:"tiers"`
	Director3ID string                          `yaml:"director3Id" json:"director3Id"`
}

// DefaultConfig returns the default lock configuration.
func DefaultConfig() Config {
	return Config{
		Tiers: map[action.RiskLevel]TierPolicy{
			action.RiskLow:  {TimeoutHours: 24, OnTimeout: TimeoutAutoApprove},
			action.RiskMid:  {TimeoutHours: 72, OnTimeout: TimeoutEscalate},
			action.RiskHigh: {TimeoutHours: 168, OnTimeout: TimeoutEscalate},
		},
		Director3ID: "director-3",
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("lock: tiers were empty")
	}
	for level, tier := range c.Tiers {
		if tier.TimeoutHours <= 0 {
			return fmt.Errorf("lock: tier %v timeout was %v", level, tier.TimeoutHours)
		}
		switch tier.OnTimeout {
		case TimeoutAutoApprove, TimeoutEscalate, TimeoutReject:
		default:
			return fmt.Errorf("lock: tier %v unsupported timeout action: %v", level, tier.OnTimeout)
		}
	}
	if high, ok := c.Tiers[action.RiskHigh]; ok && high.OnTimeout == TimeoutAutoApprove {
		return fmt.Errorf("lock: high risk tier cannot auto approve on timeout")
	}
	return nil
}

func (c *Config) tier(level action.RiskLevel) TierPolicy {
	if tier, ok := c.Tiers[level]; ok {
		return tier
	}
	return TierPolicy{TimeoutHours: 72, OnTimeout: TimeoutEscalate}
}
