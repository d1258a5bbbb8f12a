package signal

import "time"

// Signal is a raw inbound observation (social post, RSS item, chain event)
// that may spawn a governance proposal once it passes the anti-abuse guard.
// Scrapers producing signals are external collaborators.
type Signal struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source,omitempty"`
	Domain     string                 `json:"domain,omitempty"`
	Topic      string                 `json:"topic,omitempty"`
	Content    string                 `json:"content"`
	Quality    float64                `json:"quality"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// ValidationResult is returned (never thrown) by the guard: rejection is an
// expected, frequent outcome.
type ValidationResult struct {
	Valid bool `json:"valid"`
	// Reason explains a rejection; empty when Valid.
	Reason string `json:"reason,omitempty"`
	// ShouldEscalate flags that enough similar signals accumulated to warrant
	// human attention. The signal itself is still accepted.
	ShouldEscalate bool `json:"shouldEscalate,omitempty"`
	// SimilarCount is how many accepted signals resembled this one.
	SimilarCount int `json:"similarCount,omitempty"`
}

// Accept returns a passing result.
func Accept() *ValidationResult { return &ValidationResult{Valid: true} }

// Reject returns a failing result with the given reason.
func Reject(reason string) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason}
}
