// Package guard screens inbound signals against rate, quality and
// duplication abuse before they can spawn governance work.
package guard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/model/signal"
)

// Config defines anti-abuse settings.
type Config struct {
	MaxSignalsPerHour        int           `yaml:"maxSignalsPerHour" json:"maxSignalsPerHour"`
	MaxIssuesPerDay          int           `yaml:"maxIssuesPerDay" json:"maxIssuesPerDay"`
	DeduplicationWindowDays  int           `yaml:"deduplicationWindowDays" json:"deduplicationWindowDays"`
	SimilarityThreshold      float64       `yaml:"similarityThreshold" json:"similarityThreshold"`
	MinimumSignalQuality     float64       `yaml:"minimumSignalQuality" json:"minimumSignalQuality"`
	DuplicateCooldown        time.Duration `yaml:"duplicateCooldown" json:"duplicateCooldown"`
	TopicCooldownDays        int           `yaml:"topicCooldownDays" json:"topicCooldownDays"`
	HumanEscalationThreshold int           `yaml:"humanEscalationThreshold" json:"humanEscalationThreshold"`
	BlockedDomains           []string      `yaml:"blockedDomains" json:"blockedDomains"`
	BlockedPatterns          []string      `yaml:"blockedPatterns" json:"blockedPatterns"`
}

// DefaultConfig returns the default guard configuration.
func DefaultConfig() Config {
	return Config{
		MaxSignalsPerHour:        10,
		MaxIssuesPerDay:          5,
		DeduplicationWindowDays:  7,
		SimilarityThreshold:      0.85,
		MinimumSignalQuality:     0.3,
		DuplicateCooldown:        24 * time.Hour,
		TopicCooldownDays:        3,
		HumanEscalationThreshold: 5,
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if c.MaxSignalsPerHour <= 0 {
		return fmt.Errorf("guard: maxSignalsPerHour was %v", c.MaxSignalsPerHour)
	}
	if c.MaxIssuesPerDay <= 0 {
		return fmt.Errorf("guard: maxIssuesPerDay was %v", c.MaxIssuesPerDay)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("guard: similarityThreshold was %v", c.SimilarityThreshold)
	}
	if c.MinimumSignalQuality < 0 || c.MinimumSignalQuality > 1 {
		return fmt.Errorf("guard: minimumSignalQuality was %v", c.MinimumSignalQuality)
	}
	return nil
}

type record struct {
	hash       string
	shingles   map[string]struct{}
	topic      string
	receivedAt time.Time
}

// Guard is the anti-abuse screen. Construct instances with New; each guard
// keeps its own window state.
type Guard struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	accepted  []record
	issues    []time.Time
	cooldowns map[string]time.Time
}

// Option configures the guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a guard.
func New(config Config, options ...Option) *Guard {
	ret := &Guard{
		config:    config,
		now:       clock.Now,
		cooldowns: make(map[string]time.Time),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// ValidateSignal screens one signal. Checks run in a fixed order so that the
// cheapest guards reject first: rate limits, blocklists, quality, exact
// duplicates, near duplicates, then topic cooldowns. Rejection is a result,
// not an error. Accepted signals are recorded for future duplicate checks.
func (g *Guard) ValidateSignal(s *signal.Signal) *signal.ValidationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.pruneLocked(now)

	if g.signalsSinceLocked(now.Add(-time.Hour)) >= g.config.MaxSignalsPerHour {
		return signal.Reject(fmt.Sprintf("hourly signal limit of %v reached", g.config.MaxSignalsPerHour))
	}
	if len(g.issues) >= g.config.MaxIssuesPerDay {
		return signal.Reject(fmt.Sprintf("daily issue limit of %v reached", g.config.MaxIssuesPerDay))
	}
	if domain := strings.ToLower(s.Domain); domain != "" {
		for _, blocked := range g.config.BlockedDomains {
			if domain == strings.ToLower(blocked) {
				return signal.Reject(fmt.Sprintf("domain %v is blocked", s.Domain))
			}
		}
	}
	content := strings.ToLower(s.Content)
	for _, pattern := range g.config.BlockedPatterns {
		if pattern != "" && strings.Contains(content, strings.ToLower(pattern)) {
			return signal.Reject(fmt.Sprintf("content matches blocked pattern %q", pattern))
		}
	}
	if s.Quality < g.config.MinimumSignalQuality {
		return signal.Reject(fmt.Sprintf("quality %.2f below minimum %.2f", s.Quality, g.config.MinimumSignalQuality))
	}

	hash := contentHash(s.Content)
	duplicateCutoff := now.Add(-g.config.DuplicateCooldown)
	candidate := shingles(s.Content)
	for _, prev := range g.accepted {
		if prev.hash == hash && prev.receivedAt.After(duplicateCutoff) {
			return signal.Reject("Duplicate of a recently accepted signal")
		}
	}
	for _, prev := range g.accepted {
		if similarity := jaccard(candidate, prev.shingles); similarity >= g.config.SimilarityThreshold {
			return signal.Reject(fmt.Sprintf("Duplicate: %.0f%% similar to a signal from %v",
				similarity*100, prev.receivedAt.Format(time.RFC3339)))
		}
	}
	if topic := strings.ToLower(s.Topic); topic != "" {
		if until, ok := g.cooldowns[topic]; ok && now.Before(until) {
			return signal.Reject(fmt.Sprintf("topic %v is cooling down until %v", s.Topic, until.Format(time.RFC3339)))
		}
	}

	ret := signal.Accept()
	if g.config.HumanEscalationThreshold > 0 {
		// Similar means same topic, or content related enough to share
		// half the duplicate shingle overlap even under another topic.
		topic := strings.ToLower(s.Topic)
		related := g.config.SimilarityThreshold / 2
		for _, prev := range g.accepted {
			if (topic != "" && prev.topic == topic) || jaccard(candidate, prev.shingles) >= related {
				ret.SimilarCount++
			}
		}
		if ret.SimilarCount >= g.config.HumanEscalationThreshold {
			ret.ShouldEscalate = true
		}
	}
	g.accepted = append(g.accepted, record{
		hash:       hash,
		shingles:   candidate,
		topic:      strings.ToLower(s.Topic),
		receivedAt: now,
	})
	return ret
}

// RecordIssue counts one created issue against the daily budget.
func (g *Guard) RecordIssue() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issues = append(g.issues, g.now())
}

// RejectTopic places a topic on cooldown so repeated proposals about it are
// rejected for the configured number of days.
func (g *Guard) RejectTopic(topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	days := g.config.TopicCooldownDays
	if days <= 0 {
		days = 1
	}
	g.cooldowns[strings.ToLower(topic)] = g.now().Add(time.Duration(days) * 24 * time.Hour)
}

// Cleanup drops window state that can no longer affect validation.
func (g *Guard) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
}

func (g *Guard) pruneLocked(now time.Time) {
	dedupCutoff := now.AddDate(0, 0, -g.config.DeduplicationWindowDays)
	kept := g.accepted[:0]
	for _, prev := range g.accepted {
		if prev.receivedAt.After(dedupCutoff) {
			kept = append(kept, prev)
		}
	}
	g.accepted = kept

	dayCutoff := now.Add(-24 * time.Hour)
	issues := g.issues[:0]
	for _, at := range g.issues {
		if at.After(dayCutoff) {
			issues = append(issues, at)
		}
	}
	g.issues = issues

	for topic, until := range g.cooldowns {
		if !now.Before(until) {
			delete(g.cooldowns, topic)
		}
	}
}

func (g *Guard) signalsSinceLocked(cutoff time.Time) int {
	count := 0
	for _, prev := range g.accepted {
		if prev.receivedAt.After(cutoff) {
			count++
		}
	}
	return count
}
