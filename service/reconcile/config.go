package reconcile

import (
	"fmt"
	"time"
)

// Config defines reconciliation settings.
type Config struct {
	// Timeout is how long a memo waits for a Director 3 decision before the
	// expiry sweep force-rejects the session.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Director3AllowList names the actors allowed to submit Director 3
	// decisions. The list must not be empty; there is no wildcard.
	Director3AllowList []string `yaml:"director3AllowList" json:"director3AllowList"`
	// ParticipationGapPoints is the participation difference, in percentage
	// points, above which one house's verdict outweighs the other's.
	ParticipationGapPoints float64 `yaml:"participationGapPoints" json:"participationGapPoints"`
}

// DefaultConfig returns the default reconciliation configuration. The
// Director 3 allow-list has no default, deployments must configure it.
func DefaultConfig() Config {
	return Config{
		Timeout:                72 * time.Hour,
		ParticipationGapPoints: 20,
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("reconcile: timeout was %v", c.Timeout)
	}
	if len(c.Director3AllowList) == 0 {
		return fmt.Errorf("reconcile: director3AllowList must not be empty")
	}
	for _, actor := range c.Director3AllowList {
		if actor == "" {
			return fmt.Errorf("reconcile: director3AllowList contained an empty actor id")
		}
	}
	if c.ParticipationGapPoints <= 0 {
		return fmt.Errorf("reconcile: participationGapPoints was %v", c.ParticipationGapPoints)
	}
	return nil
}

func (c *Config) allows(actor string) bool {
	for _, candidate := range c.Director3AllowList {
		if candidate == actor {
			return true
		}
	}
	return false
}
