package action

import "time"

// Type identifies a governance action kind. The mapping Type → RiskLevel is
// fixed and total; unknown types classify as MID so that they never bypass
// review by accident.
type Type string

const (
	// LOW risk: reversible, internal.
	TypeDocumentUpdate Type = "document_update"
	TypeCommentPost    Type = "comment_post"
	TypeMetadataUpdate Type = "metadata_update"

	// MID risk: reversible with effort, organizational.
	TypeMemberOnboarding   Type = "member_onboarding"
	TypePolicyUpdate       Type = "policy_update"
	TypeBudgetReallocation Type = "budget_reallocation"
	TypeCodeMerge          Type = "code_merge"

	// HIGH risk: irrevocable by default.
	TypeFundTransfer          Type = "fund_transfer"
	TypeContractDeploy        Type = "contract_deploy"
	TypePartnershipCommitment Type = "partnership_commitment"
	TypeExternalCommunication Type = "external_communication"
)

// RiskLevel classifies how dangerous an action is when executed.
type RiskLevel string

const (
	RiskLow  RiskLevel = "LOW"
	RiskMid  RiskLevel = "MID"
	RiskHigh RiskLevel = "HIGH"
)

// baseRisk is the fixed Type → RiskLevel table.
var baseRisk = map[Type]RiskLevel{
	TypeDocumentUpdate:        RiskLow,
	TypeCommentPost:           RiskLow,
	TypeMetadataUpdate:        RiskLow,
	TypeMemberOnboarding:      RiskMid,
	TypePolicyUpdate:          RiskMid,
	TypeBudgetReallocation:    RiskMid,
	TypeCodeMerge:             RiskMid,
	TypeFundTransfer:          RiskHigh,
	TypeContractDeploy:        RiskHigh,
	TypePartnershipCommitment: RiskHigh,
	TypeExternalCommunication: RiskHigh,
}

// BaseRisk returns the configured risk level for t. Unknown types map to MID.
func (t Type) BaseRisk() RiskLevel {
	if level, ok := baseRisk[t]; ok {
		return level
	}
	return RiskMid
}

// Types returns every known action type in no particular order.
func Types() []Type {
	out := make([]Type, 0, len(baseRisk))
	for t := range baseRisk {
		out = append(out, t)
	}
	return out
}

// Penalty holds four independent penalty scores. Scores are zero or negative;
// the more negative the sum, the riskier the action.
type Penalty struct {
	Security      int `json:"security" yaml:"security"`
	Compliance    int `json:"compliance" yaml:"compliance"`
	Reputational  int `json:"reputational" yaml:"reputational"`
	Reversibility int `json:"reversibility" yaml:"reversibility"`
}

// Total returns the sum of all four scores.
func (p Penalty) Total() int {
	return p.Security + p.Compliance + p.Reputational + p.Reversibility
}

// ApproverType identifies the constituency an approval must come from.
type ApproverType string

const (
	ApproverDirector3   ApproverType = "director_3"
	ApproverMocHouse    ApproverType = "moc_house"
	ApproverOssHouse    ApproverType = "oss_house"
	ApproverAnyReviewer ApproverType = "any_reviewer"
)

// Obligation tags a requirement as blocking or informational. Optional
// requirements never block unlock; they exist so that dashboards can show
// who was consulted.
type Obligation string

const (
	Required Obligation = "required"
	Optional Obligation = "optional"
)

// Requirement is a single approval requirement on a locked action.
type Requirement struct {
	Approver   ApproverType `json:"approver"`
	Obligation Obligation   `json:"obligation"`
}

// Decision is an approve/reject verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReviewerKind distinguishes human reviewers from software agents.
type ReviewerKind string

const (
	ReviewerHuman ReviewerKind = "human"
	ReviewerAgent ReviewerKind = "agent"
)

// ApprovalRecord is an append-only record of a reviewer verdict. Records are
// never mutated after creation.
type ApprovalRecord struct {
	ReviewerID   string       `json:"reviewerId"`
	ReviewerKind ReviewerKind `json:"reviewerKind"`
	Role         ApproverType `json:"role"`
	Decision     Decision     `json:"decision"`
	Comment      string       `json:"comment,omitempty"`
	DecidedAt    time.Time    `json:"decidedAt"`
}

// Status is the locked action lifecycle state. Status only advances
// LOCKED → PENDING_APPROVAL → APPROVED → EXECUTED, or moves to REJECTED from
// either of the first two. EXECUTED and REJECTED are terminal.
type Status string

const (
	StatusLocked          Status = "LOCKED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusExecuted        Status = "EXECUTED"
	StatusRejected        Status = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// LockedAction is an action whose execution is withheld pending satisfaction
// of its approval requirements.
type LockedAction struct {
	ID           string                 `json:"id"`
	DocumentID   string                 `json:"documentId,omitempty"`
	Type         Type                   `json:"type"`
	RiskLevel    RiskLevel              `json:"riskLevel"`
	TotalPenalty int                    `json:"totalPenalty"`
	Reason       string                 `json:"reason,omitempty"`
	Requirements []Requirement          `json:"requirements"`
	Approvals    []ApprovalRecord       `json:"approvals"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Status       Status                 `json:"status"`
	TimeoutAt    time.Time              `json:"timeoutAt"`
	EscalatedAt  *time.Time             `json:"escalatedAt,omitempty"`
	UnlockChecks int                    `json:"unlockChecks"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Approval returns the first approve-decision record matching role, or nil.
func (a *LockedAction) Approval(role ApproverType) *ApprovalRecord {
	for i := range a.Approvals {
		rec := &a.Approvals[i]
		if rec.Role == role && rec.Decision == DecisionApprove {
			return rec
		}
	}
	return nil
}

// ApprovalBy returns the first approve-decision record by reviewer id, or nil.
func (a *LockedAction) ApprovalBy(reviewerID string) *ApprovalRecord {
	for i := range a.Approvals {
		rec := &a.Approvals[i]
		if rec.ReviewerID == reviewerID && rec.Decision == DecisionApprove {
			return rec
		}
	}
	return nil
}

// MissingRequired lists required approver types with no matching approval.
// Optional requirements are always treated as satisfied.
func (a *LockedAction) MissingRequired() []ApproverType {
	var missing []ApproverType
	for _, req := range a.Requirements {
		if req.Obligation != Required {
			continue
		}
		if a.Approval(req.Approver) == nil {
			missing = append(missing, req.Approver)
		}
	}
	return missing
}

// Expired reports whether the action timed out as of now.
func (a *LockedAction) Expired(now time.Time) bool {
	return !a.Status.IsTerminal() && now.After(a.TimeoutAt)
}
