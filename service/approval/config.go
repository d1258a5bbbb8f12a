package approval

import (
	"fmt"
	"time"

	"github.com/mossdao/gavel/model/action"
)

// Config defines approval routing settings.
type Config struct {
	// DueHours maps a risk tier to the review deadline in hours.
	DueHours map[action.RiskLevel]int `yaml:"dueHours" json:"dueHours"`
	// MidReviewerCount is how many available human reviewers a mid risk
	// action is routed to.
	MidReviewerCount int `yaml:"midReviewerCount" json:"midReviewerCount"`
	// ReminderWindow is how long before the due time a reminder goes out.
	ReminderWindow time.Duration `yaml:"reminderWindow" json:"reminderWindow"`
}

// DefaultConfig returns the default approval routing configuration.
func DefaultConfig() Config {
	return Config{
		DueHours: map[action.RiskLevel]int{
			action.RiskLow:  24,
			action.RiskMid:  72,
			action.RiskHigh: 168,
		},
		MidReviewerCount: 3,
		ReminderWindow:   24 * time.Hour,
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if c.MidReviewerCount <= 0 {
		return fmt.Errorf("approval: midReviewerCount was %v", c.MidReviewerCount)
	}
	if c.ReminderWindow <= 0 {
		return fmt.Errorf("approval: reminderWindow was %v", c.ReminderWindow)
	}
	return nil
}

func (c *Config) dueHours(level action.RiskLevel) int {
	if hours, ok := c.DueHours[level]; ok {
		return hours
	}
	return 72
}
