// Package reconcile resolves dual-house voting conflicts through
// reconciliation memos and Director 3 arbitration.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/model/voting"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
	votingsrv "github.com/mossdao/gavel/service/voting"
)

const entityKind = "reconciliationMemo"

// Manager owns reconciliation memos and applies Director 3 decisions to the
// underlying voting sessions.
type Manager struct {
	config  Config
	memos   dao.Service[string, voting.ReconciliationMemo]
	voting  *votingsrv.Service
	events  *event.Service
	now     func() time.Time
	mu      sync.Mutex
	daySeqs map[string]int
}

// Option configures the manager.
type Option func(*Manager)

// WithStore overrides the memo store.
func WithStore(memos dao.Service[string, voting.ReconciliationMemo]) Option {
	return func(m *Manager) { m.memos = memos }
}

// WithEventService attaches the event service.
func WithEventService(events *event.Service) Option {
	return func(m *Manager) { m.events = events }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a reconciliation manager bound to the voting service.
func New(config Config, votingService *votingsrv.Service, options ...Option) *Manager {
	ret := &Manager{
		config:  config,
		voting:  votingService,
		now:     clock.Now,
		daySeqs: make(map[string]int),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.memos == nil {
		ret.memos = store.New[string, voting.ReconciliationMemo](
			func(m *voting.ReconciliationMemo) string { return m.DocumentID },
			store.WithMatcher[string, voting.ReconciliationMemo](matchMemo))
	}
	return ret
}

func matchMemo(m *voting.ReconciliationMemo, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter.Name != "SessionID" {
			continue
		}
		if sessionID, ok := parameter.Value.(string); ok && m.SessionID != sessionID {
			return false
		}
	}
	return criteria.MatchStatus(string(m.Status), parameters) &&
		criteria.MatchTime("ExpiresAt", m.ExpiresAt, parameters)
}

// GenerateConflictSummary describes why the two house tallies disagree. It
// requires a finalized session with both tallies present.
func (m *Manager) GenerateConflictSummary(session *voting.Session) (*voting.ConflictSummary, error) {
	if session.MocTally == nil || session.OssTally == nil {
		return nil, fmt.Errorf("reconcile: session %v has no tallies", session.ID)
	}
	moc, oss := session.MocTally, session.OssTally
	ret := &voting.ConflictSummary{
		Moc:              position(moc),
		Oss:              position(oss),
		ParticipationGap: math.Abs(moc.ParticipationRate - oss.ParticipationRate),
	}
	if moc.QuorumReached && oss.QuorumReached && moc.Passed != oss.Passed {
		ret.Causes = append(ret.Causes, voting.CauseOpposingOutcomes)
	}
	if moc.QuorumReached != oss.QuorumReached {
		ret.Causes = append(ret.Causes, voting.CauseQuorumFailure)
	}
	if ret.ParticipationGap > 30 {
		ret.Causes = append(ret.Causes, voting.CauseParticipationGap)
	}
	return ret, nil
}

func position(tally *voting.HouseTally) voting.HousePosition {
	return voting.HousePosition{
		House:             tally.House,
		Passed:            tally.Passed,
		QuorumReached:     tally.QuorumReached,
		ParticipationRate: tally.ParticipationRate,
		For:               tally.For,
		Against:           tally.Against,
		Abstain:           tally.Abstain,
	}
}

// GenerateRecommendation applies the resolution decision table to a conflict
// summary. A house that alone reached quorum prevails; with both houses at
// quorum a clear participation edge favors the more engaged house, otherwise
// a compromise is suggested. Two failed verdicts recommend rejecting both.
func (m *Manager) GenerateRecommendation(summary *voting.ConflictSummary) *voting.Analysis {
	moc, oss := summary.Moc, summary.Oss
	switch {
	case !moc.Passed && !oss.Passed && moc.QuorumReached && oss.QuorumReached:
		return &voting.Analysis{
			Recommendation: voting.RecommendRejectBoth,
			Confidence:     0.9,
			Rationale:      "neither house approved the proposal",
		}
	case moc.QuorumReached && !oss.QuorumReached:
		return &voting.Analysis{
			Recommendation: voting.RecommendFavorMoc,
			Confidence:     0.8,
			Rationale:      "only the MossCoin house reached quorum",
		}
	case oss.QuorumReached && !moc.QuorumReached:
		return &voting.Analysis{
			Recommendation: voting.RecommendFavorOss,
			Confidence:     0.8,
			Rationale:      "only the Open Source house reached quorum",
		}
	case summary.ParticipationGap >= m.config.ParticipationGapPoints:
		favored := voting.RecommendFavorMoc
		name := "MossCoin"
		if oss.ParticipationRate > moc.ParticipationRate {
			favored = voting.RecommendFavorOss
			name = "Open Source"
		}
		return &voting.Analysis{
			Recommendation: favored,
			Confidence:     0.7,
			Rationale: fmt.Sprintf("the %v house shows a %.0f point participation edge",
				name, summary.ParticipationGap),
		}
	}
	return &voting.Analysis{
		Recommendation: voting.RecommendCompromise,
		Confidence:     0.5,
		Rationale:      "houses disagree with comparable engagement, seek amended terms",
	}
}

// TriggerReconciliation opens a memo for a session parked in
// awaiting_reconciliation. At most one memo exists per session; the memo is
// created awaiting a Director 3 decision with the configured deadline.
func (m *Manager) TriggerReconciliation(ctx context.Context, sessionID string) (*voting.ReconciliationMemo, error) {
	session, err := m.voting.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != voting.SessionReconciliation {
		return nil, types.NewInvalidTransitionError("votingSession", sessionID, string(session.Status), "triggerReconciliation")
	}
	summary, err := m.GenerateConflictSummary(session)
	if err != nil {
		return nil, err
	}
	ret, err := m.openMemo(ctx, sessionID, summary)
	if err != nil {
		return nil, err
	}
	m.publish(event.TypeReconciliationTriggered, ret, "system")
	m.publish(event.TypeDirector3Required, ret, "system")
	return ret, nil
}

// openMemo holds the manager lock across the per-session uniqueness check,
// the ordinal allocation and the save, so concurrent triggers for the same
// session cannot both create a memo.
func (m *Manager) openMemo(ctx context.Context, sessionID string, summary *voting.ConflictSummary) (*voting.ReconciliationMemo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, err := m.memos.List(ctx, dao.NewParameter("SessionID", sessionID))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, types.NewDuplicateError(entityKind, existing[0].DocumentID)
	}
	now := m.now()
	ret := &voting.ReconciliationMemo{
		DocumentID: m.nextMemoID(ctx, now),
		SessionID:  sessionID,
		Summary:    summary,
		Analysis:   m.GenerateRecommendation(summary),
		Status:     voting.MemoAwaitingDirector3,
		ExpiresAt:  now.Add(m.config.Timeout),
		CreatedAt:  now,
	}
	if err = m.memos.Save(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// nextMemoID allocates the next RC-YYYYMMDD-NNN id for the given day. The
// in-memory day counter is seeded from the store so restarts do not reuse
// ordinals. The caller holds m.mu.
func (m *Manager) nextMemoID(ctx context.Context, day time.Time) string {
	key := day.Format("20060102")
	seq, ok := m.daySeqs[key]
	if !ok {
		seq = m.lastStoredSeq(ctx, key)
	}
	seq++
	m.daySeqs[key] = seq
	return idgen.MemoID(day, seq)
}

func (m *Manager) lastStoredSeq(ctx context.Context, day string) int {
	memos, err := m.memos.List(ctx)
	if err != nil {
		return 0
	}
	prefix := "RC-" + day + "-"
	last := 0
	for _, memo := range memos {
		if !strings.HasPrefix(memo.DocumentID, prefix) {
			continue
		}
		if _, seq, err := idgen.ParseMemoID(memo.DocumentID); err == nil && seq > last {
			last = seq
		}
	}
	return last
}

// Get loads a memo by document id.
func (m *Manager) Get(ctx context.Context, documentID string) (*voting.ReconciliationMemo, error) {
	ret, err := m.memos.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(entityKind, documentID)
	}
	return ret, nil
}

// MemoForSession returns the memo opened for a session, or nil.
func (m *Manager) MemoForSession(ctx context.Context, sessionID string) (*voting.ReconciliationMemo, error) {
	memos, err := m.memos.List(ctx, dao.NewParameter("SessionID", sessionID))
	if err != nil {
		return nil, err
	}
	if len(memos) == 0 {
		return nil, nil
	}
	return memos[0], nil
}

// SubmitDirector3Decision applies the arbiter decision to the memo and its
// voting session. Only actors on the configured allow-list may decide, and
// only while the memo awaits a decision.
func (m *Manager) SubmitDirector3Decision(ctx context.Context, documentID string, decision voting.Director3Decision) (*voting.ReconciliationMemo, error) {
	if !m.config.allows(decision.DeciderID) {
		return nil, types.NewAuthorizationError(decision.DeciderID, "submitDirector3Decision")
	}
	memo, err := m.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if memo.Status != voting.MemoAwaitingDirector3 {
		return nil, types.NewInvalidTransitionError(entityKind, documentID, string(memo.Status), "submitDirector3Decision")
	}
	if err = m.applyEffect(ctx, memo.SessionID, decision); err != nil {
		return nil, err
	}
	ret, err := m.memos.Mutate(ctx, documentID, func(memo *voting.ReconciliationMemo) error {
		if memo.Status != voting.MemoAwaitingDirector3 {
			return types.NewInvalidTransitionError(entityKind, documentID, string(memo.Status), "submitDirector3Decision")
		}
		if decision.DecidedAt.IsZero() {
			decision.DecidedAt = m.now()
		}
		memo.Decision = &decision
		memo.Status = voting.MemoResolved
		resolvedAt := m.now()
		memo.ResolvedAt = &resolvedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(event.TypeReconciliationResolved, ret, decision.DeciderID)
	return ret, nil
}

func (m *Manager) applyEffect(ctx context.Context, sessionID string, decision voting.Director3Decision) error {
	var err error
	switch decision.Effect {
	case voting.EffectOverrideMoc:
		_, err = m.voting.AdoptHouseVerdict(ctx, sessionID, voting.HouseMossCoin, decision.DeciderID)
	case voting.EffectOverrideOss:
		_, err = m.voting.AdoptHouseVerdict(ctx, sessionID, voting.HouseOpenSource, decision.DeciderID)
	case voting.EffectRevote:
		_, err = m.voting.RequireRevote(ctx, sessionID)
	case voting.EffectVeto:
		_, err = m.voting.ForceReject(ctx, sessionID, "vetoed by Director 3")
	case voting.EffectApproveWithConditions:
		_, err = m.voting.ApproveWithConditions(ctx, sessionID, decision.Conditions)
	default:
		err = fmt.Errorf("reconcile: unknown decision effect: %v", decision.Effect)
	}
	return err
}

// ExpireOldMemos expires every memo past its deadline and force-rejects the
// associated session.
func (m *Manager) ExpireOldMemos(ctx context.Context) ([]*voting.ReconciliationMemo, error) {
	candidates, err := m.memos.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var expired []*voting.ReconciliationMemo
	for _, candidate := range candidates {
		if !candidate.Expired(now) {
			continue
		}
		updated, err := m.memos.Mutate(ctx, candidate.DocumentID, func(memo *voting.ReconciliationMemo) error {
			memo.Status = voting.MemoExpired
			resolvedAt := now
			memo.ResolvedAt = &resolvedAt
			return nil
		})
		if err != nil {
			return expired, err
		}
		if _, err = m.voting.ForceReject(ctx, updated.SessionID, "reconciliation deadline elapsed"); err != nil {
			log.Printf("failed to reject session %v after memo expiry: %v", updated.SessionID, err)
		}
		m.publish(event.TypeReconciliationResolved, updated, "system")
		expired = append(expired, updated)
	}
	return expired, nil
}

func (m *Manager) publish(eventType string, memo *voting.ReconciliationMemo, actor string) {
	if m.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*voting.ReconciliationMemo](m.events)
	if err != nil {
		log.Printf("failed to acquire reconciliation publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: entityKind, EntityID: memo.DocumentID, EventType: eventType, Actor: actor}, memo)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, memo.DocumentID, err)
	}
}
