package gavel

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/mossdao/gavel/service/approval"
	"github.com/mossdao/gavel/service/consensus"
	"github.com/mossdao/gavel/service/guard"
	"github.com/mossdao/gavel/service/lock"
	"github.com/mossdao/gavel/service/messaging"
	"github.com/mossdao/gavel/service/reconcile"
	"github.com/mossdao/gavel/service/retry"
	"github.com/mossdao/gavel/service/voting"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML, environment driven templating, etc. Nested sections
// inherit their package defaults.
type Config struct {
	Lock           lock.Config      `json:"lock" yaml:"lock"`
	Approval       approval.Config  `json:"approval" yaml:"approval"`
	Consensus      consensus.Config `json:"consensus" yaml:"consensus"`
	Voting         voting.Config    `json:"voting" yaml:"voting"`
	Reconciliation reconcile.Config `json:"reconciliation" yaml:"reconciliation"`
	Retry          retry.Config     `json:"retry" yaml:"retry"`
	Guard          guard.Config     `json:"guard" yaml:"guard"`
	Sweep          SweepConfig      `json:"sweep" yaml:"sweep"`
	Queue          QueueConfig      `json:"queue" yaml:"queue"`
}

// SweepConfig drives the background expiry sweeper.
type SweepConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// QueueConfig selects the messaging vendor backing event queues.
type QueueConfig struct {
	Vendor   messaging.Vendor `json:"vendor" yaml:"vendor"`
	BasePath string           `json:"basePath,omitempty" yaml:"basePath,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults. The
// Director 3 allow-list has no default and must be set before Validate.
func DefaultConfig() *Config {
	return &Config{
		Lock:           lock.DefaultConfig(),
		Approval:       approval.DefaultConfig(),
		Consensus:      consensus.DefaultConfig(),
		Voting:         voting.DefaultConfig(),
		Reconciliation: reconcile.DefaultConfig(),
		Retry:          retry.DefaultConfig(),
		Guard:          guard.DefaultConfig(),
		Sweep:          SweepConfig{Interval: time.Minute},
		Queue:          QueueConfig{Vendor: messaging.VendorMemory},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := c.Lock.Validate(); err != nil {
		return err
	}
	if err := c.Approval.Validate(); err != nil {
		return err
	}
	if err := c.Consensus.Validate(); err != nil {
		return err
	}
	if err := c.Voting.Validate(); err != nil {
		return err
	}
	if err := c.Reconciliation.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Guard.Validate(); err != nil {
		return err
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be > 0")
	}
	switch c.Queue.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFs:
		if c.Queue.BasePath == "" {
			return fmt.Errorf("queue.basePath is required for the fs vendor")
		}
	default:
		return fmt.Errorf("unsupported queue vendor: %v", c.Queue.Vendor)
	}
	return nil
}

// LoadConfig reads a YAML configuration from the given URL (file path, s3://,
// gs://, mem:// etc.) layered over the defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	return ret, nil
}
