package voting

import "time"

// HouseID identifies one of the two voting constituencies.
type HouseID string

const (
	// HouseMossCoin is the token-weighted holder constituency.
	HouseMossCoin HouseID = "moc"
	// HouseOpenSource is the contribution-weighted contributor constituency.
	HouseOpenSource HouseID = "oss"
)

// House carries the per-constituency voting configuration. Membership and
// weight data live with an external collaborator; the engine only needs the
// eligible total weight to compute participation.
type House struct {
	ID               HouseID `json:"id" yaml:"id"`
	Name             string  `json:"name,omitempty" yaml:"name,omitempty"`
	EligibleWeight   float64 `json:"eligibleWeight" yaml:"eligibleWeight"`
	QuorumPercent    float64 `json:"quorumPercent" yaml:"quorumPercent"`
	ThresholdPercent float64 `json:"thresholdPercent" yaml:"thresholdPercent"`
}

// Choice is a single ballot option.
type Choice string

const (
	ChoiceFor     Choice = "for"
	ChoiceAgainst Choice = "against"
	ChoiceAbstain Choice = "abstain"
)

// Vote is one weighted ballot cast in a session.
type Vote struct {
	VoterID string    `json:"voterId"`
	House   HouseID   `json:"house"`
	Choice  Choice    `json:"choice"`
	Weight  float64   `json:"weight"`
	CastAt  time.Time `json:"castAt"`
}

// HouseTally is the deterministic per-house outcome computed from cast votes
// and house configuration.
type HouseTally struct {
	House             HouseID `json:"house"`
	For               float64 `json:"for"`
	Against           float64 `json:"against"`
	Abstain           float64 `json:"abstain"`
	ParticipationRate float64 `json:"participationRate"`
	QuorumReached     bool    `json:"quorumReached"`
	Passed            bool    `json:"passed"`
}

// SessionStatus is the dual-house voting session lifecycle.
type SessionStatus string

const (
	SessionOpen           SessionStatus = "open"
	SessionPassed         SessionStatus = "passed"
	SessionRejected       SessionStatus = "rejected"
	SessionReconciliation SessionStatus = "awaiting_reconciliation"
)

// Session is a dual-house vote on a single proposal.
type Session struct {
	ID         string        `json:"id"`
	ProposalID string        `json:"proposalId"`
	Title      string        `json:"title,omitempty"`
	Moc        *House        `json:"moc"`
	Oss        *House        `json:"oss"`
	Votes      []Vote        `json:"votes,omitempty"`
	MocTally   *HouseTally   `json:"mocTally,omitempty"`
	OssTally   *HouseTally   `json:"ossTally,omitempty"`
	Status     SessionStatus `json:"status"`
	HighRisk   bool          `json:"highRisk,omitempty"`
	// RequiresReconciliation is set on finalization when the two houses'
	// passed outcomes diverge, or one house fails quorum while the other
	// does not.
	RequiresReconciliation bool       `json:"requiresReconciliation,omitempty"`
	Conditions             []string   `json:"conditions,omitempty"`
	Outcome                string     `json:"outcome,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	FinalizedAt            *time.Time `json:"finalizedAt,omitempty"`
}

// HouseTallyFor returns the finalized tally for the given house id.
func (s *Session) HouseTallyFor(house HouseID) *HouseTally {
	switch house {
	case HouseMossCoin:
		return s.MocTally
	case HouseOpenSource:
		return s.OssTally
	}
	return nil
}
