package voting

import "time"

// Recommendation is the orchestrator's suggested resolution of a house
// conflict.
type Recommendation string

const (
	RecommendFavorMoc   Recommendation = "favor_moc"
	RecommendFavorOss   Recommendation = "favor_oss"
	RecommendCompromise Recommendation = "compromise"
	RecommendRejectBoth Recommendation = "reject_both"
)

// HousePosition summarises one house's numeric stance for a conflict memo.
type HousePosition struct {
	House             HouseID `json:"house"`
	Passed            bool    `json:"passed"`
	QuorumReached     bool    `json:"quorumReached"`
	ParticipationRate float64 `json:"participationRate"`
	For               float64 `json:"for"`
	Against           float64 `json:"against"`
	Abstain           float64 `json:"abstain"`
}

// Conflict cause markers recorded on a conflict summary.
const (
	CauseOpposingOutcomes = "opposing_outcomes"
	CauseQuorumFailure    = "quorum_failure"
	CauseParticipationGap = "participation_gap"
)

// ConflictSummary is the structured description of why two houses disagree.
type ConflictSummary struct {
	Moc              HousePosition `json:"moc"`
	Oss              HousePosition `json:"oss"`
	Causes           []string      `json:"causes"`
	ParticipationGap float64       `json:"participationGap"`
}

// Analysis is the orchestrator recommendation attached to a memo.
type Analysis struct {
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	Rationale      string         `json:"rationale,omitempty"`
}

// Director3Effect is one of the five decision effects a Director 3 can apply
// to the underlying voting session.
type Director3Effect string

const (
	EffectOverrideMoc           Director3Effect = "override_moc"
	EffectOverrideOss           Director3Effect = "override_oss"
	EffectRevote                Director3Effect = "revote"
	EffectVeto                  Director3Effect = "veto"
	EffectApproveWithConditions Director3Effect = "approve_with_conditions"
)

// Director3Decision records the senior arbiter resolution.
type Director3Decision struct {
	DeciderID  string          `json:"deciderId"`
	Effect     Director3Effect `json:"effect"`
	Conditions []string        `json:"conditions,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	DecidedAt  time.Time       `json:"decidedAt"`
}

// MemoStatus is the reconciliation memo lifecycle.
type MemoStatus string

const (
	MemoAwaitingDirector3 MemoStatus = "awaiting_director3"
	MemoResolved          MemoStatus = "resolved"
	MemoExpired           MemoStatus = "expired"
)

// ReconciliationMemo documents a dual-house conflict and its resolution.
// Exactly one memo exists per voting session.
type ReconciliationMemo struct {
	// DocumentID follows the RC-YYYYMMDD-NNN format.
	DocumentID string             `json:"documentId"`
	SessionID  string             `json:"sessionId"`
	Summary    *ConflictSummary   `json:"summary,omitempty"`
	Analysis   *Analysis          `json:"analysis,omitempty"`
	Decision   *Director3Decision `json:"decision,omitempty"`
	Status     MemoStatus         `json:"status"`
	ExpiresAt  time.Time          `json:"expiresAt"`
	CreatedAt  time.Time          `json:"createdAt"`
	ResolvedAt *time.Time         `json:"resolvedAt,omitempty"`
}

// Expired reports whether the memo deadline passed without resolution.
func (m *ReconciliationMemo) Expired(now time.Time) bool {
	return m.Status == MemoAwaitingDirector3 && now.After(m.ExpiresAt)
}

// HighRiskState is the two-state lock of a high-risk approval.
type HighRiskState string

const (
	HighRiskLocked   HighRiskState = "LOCKED"
	HighRiskUnlocked HighRiskState = "UNLOCKED"
)

// HighRiskApproval tracks the three independent approvals a HIGH-risk
// proposal needs before unlock: both houses plus Director 3.
type HighRiskApproval struct {
	ID                string        `json:"id"`
	SessionID         string        `json:"sessionId"`
	ActionID          string        `json:"actionId,omitempty"`
	MocApproved       bool          `json:"mocApproved"`
	OssApproved       bool          `json:"ossApproved"`
	Director3Approved bool          `json:"director3Approved"`
	Director3ID       string        `json:"director3Id,omitempty"`
	State             HighRiskState `json:"state"`
	CreatedAt         time.Time     `json:"createdAt"`
	UnlockedAt        *time.Time    `json:"unlockedAt,omitempty"`
}

// Complete reports whether all three approvals are present.
func (h *HighRiskApproval) Complete() bool {
	return h.MocApproved && h.OssApproved && h.Director3Approved
}
