package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/service/risk"
)

func TestClassifier_Classify(t *testing.T) {
	type testCase struct {
		name         string
		actionType   action.Type
		penalty      action.Penalty
		expectLevel  action.RiskLevel
		expectLock   bool
		expectTotals int
	}

	tests := []testCase{{
		name:        "high risk always locks",
		actionType:  action.TypeFundTransfer,
		expectLevel: action.RiskHigh,
		expectLock:  true,
	}, {
		name:        "low risk without penalties stays unlocked",
		actionType:  action.TypeCommentPost,
		expectLevel: action.RiskLow,
		expectLock:  false,
	}, {
		name:         "penalty at lock threshold locks and upgrades a low risk action",
		actionType:   action.TypeDocumentUpdate,
		penalty:      action.Penalty{Security: -30, Compliance: -20},
		expectLevel:  action.RiskHigh,
		expectLock:   true,
		expectTotals: -50,
	}, {
		name:         "penalty just above the threshold upgrades without locking",
		actionType:   action.TypeDocumentUpdate,
		penalty:      action.Penalty{Security: -29, Compliance: -20},
		expectLevel:  action.RiskMid,
		expectLock:   false,
		expectTotals: -49,
	}, {
		name:        "unknown action type defaults to mid risk",
		actionType:  action.Type("mystery_operation"),
		expectLevel: action.RiskMid,
		expectLock:  false,
	}, {
		name:         "mid risk with heavy penalty locks and upgrades",
		actionType:   action.TypeBudgetReallocation,
		penalty:      action.Penalty{Reversibility: -60},
		expectLevel:  action.RiskHigh,
		expectLock:   true,
		expectTotals: -60,
	}}

	classifier := risk.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actual := classifier.Classify(tc.actionType, tc.penalty)
			assert.Equal(t, tc.expectLevel, actual.Level)
			assert.Equal(t, tc.expectLock, actual.ShouldLock)
			assert.Equal(t, tc.expectTotals, actual.TotalPenalty)
			if tc.expectLock {
				assert.NotEmpty(t, actual.Reason)
			}
		})
	}
}

func TestClassifier_EffectiveRiskLevel(t *testing.T) {
	type testCase struct {
		name       string
		actionType action.Type
		penalty    action.Penalty
		expect     action.RiskLevel
	}

	tests := []testCase{{
		name:       "low upgrades to mid at -30",
		actionType: action.TypeCommentPost,
		penalty:    action.Penalty{Reputational: -30},
		expect:     action.RiskMid,
	}, {
		name:       "low upgrades to high at -50",
		actionType: action.TypeCommentPost,
		penalty:    action.Penalty{Reputational: -50},
		expect:     action.RiskHigh,
	}, {
		name:       "mid upgrades to high at -50",
		actionType: action.TypePolicyUpdate,
		penalty:    action.Penalty{Security: -55},
		expect:     action.RiskHigh,
	}, {
		name:       "high never downgrades",
		actionType: action.TypeContractDeploy,
		penalty:    action.Penalty{},
		expect:     action.RiskHigh,
	}, {
		name:       "low without penalty stays low",
		actionType: action.TypeMetadataUpdate,
		expect:     action.RiskLow,
	}}

	classifier := risk.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, classifier.EffectiveRiskLevel(tc.actionType, tc.penalty))
		})
	}
}

func TestClassifier_HighRiskActions(t *testing.T) {
	classifier := risk.New()
	highRisk := classifier.HighRiskActions()
	assert.Contains(t, highRisk, action.TypeFundTransfer)
	assert.Contains(t, highRisk, action.TypeContractDeploy)
	assert.Contains(t, highRisk, action.TypePartnershipCommitment)
	assert.Contains(t, highRisk, action.TypeExternalCommunication)
	for _, actionType := range highRisk {
		assert.True(t, classifier.IsHighRisk(actionType))
	}
	assert.False(t, classifier.IsHighRisk(action.TypeCommentPost))
}
