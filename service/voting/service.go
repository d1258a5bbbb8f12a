// Package voting runs dual-house weighted voting sessions and computes their
// deterministic tallies.
package voting

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossdao/gavel/internal/clock"
	"github.com/mossdao/gavel/internal/idgen"
	"github.com/mossdao/gavel/model/types"
	"github.com/mossdao/gavel/model/voting"
	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/store"
	"github.com/mossdao/gavel/service/event"
)

const entityKind = "votingSession"

// Config defines default house parameters for new sessions.
type Config struct {
	Moc voting.House `yaml:"moc" json:"moc"`
	Oss voting.House `yaml:"oss" json:"oss"`
}

// DefaultConfig returns the default dual-house configuration.
func DefaultConfig() Config {
	return Config{
		Moc: voting.House{
			ID:               voting.HouseMossCoin,
			Name:             "MossCoin Holders",
			QuorumPercent:    30,
			ThresholdPercent: 50,
		},
		Oss: voting.House{
			ID:               voting.HouseOpenSource,
			Name:             "Open Source Contributors",
			QuorumPercent:    30,
			ThresholdPercent: 50,
		},
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	for _, house := range []voting.House{c.Moc, c.Oss} {
		if house.QuorumPercent < 0 || house.QuorumPercent > 100 {
			return fmt.Errorf("voting: house %v quorum was %v", house.ID, house.QuorumPercent)
		}
		if house.ThresholdPercent < 0 || house.ThresholdPercent > 100 {
			return fmt.Errorf("voting: house %v threshold was %v", house.ID, house.ThresholdPercent)
		}
	}
	return nil
}

// Service owns dual-house voting sessions.
type Service struct {
	config   Config
	sessions dao.Service[string, voting.Session]
	events   *event.Service
	now      func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithStore overrides the session store.
func WithStore(sessions dao.Service[string, voting.Session]) Option {
	return func(s *Service) { s.sessions = sessions }
}

// WithEventService attaches the event service.
func WithEventService(events *event.Service) Option {
	return func(s *Service) { s.events = events }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a voting service.
func New(config Config, options ...Option) *Service {
	ret := &Service{
		config: config,
		now:    clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.sessions == nil {
		ret.sessions = store.New[string, voting.Session](
			func(s *voting.Session) string { return s.ID },
			store.WithMatcher[string, voting.Session](matchSession))
	}
	return ret
}

func matchSession(s *voting.Session, parameters []*dao.Parameter) bool {
	return criteria.MatchStatus(string(s.Status), parameters) &&
		criteria.MatchTime("CreatedAt", s.CreatedAt, parameters)
}

// SessionOption customizes a new session.
type SessionOption func(*voting.Session)

// WithHouses overrides the configured house parameters for one session.
func WithHouses(moc, oss voting.House) SessionOption {
	return func(s *voting.Session) {
		moc.ID, oss.ID = voting.HouseMossCoin, voting.HouseOpenSource
		s.Moc, s.Oss = &moc, &oss
	}
}

// WithEligibleWeights sets the per-house eligible voting weight.
func WithEligibleWeights(moc, oss float64) SessionOption {
	return func(s *voting.Session) {
		s.Moc.EligibleWeight = moc
		s.Oss.EligibleWeight = oss
	}
}

// AsHighRisk marks the session as governing a high risk proposal.
func AsHighRisk() SessionOption {
	return func(s *voting.Session) { s.HighRisk = true }
}

// OpenSession opens a dual-house vote on a proposal.
func (s *Service) OpenSession(ctx context.Context, proposalID, title string, options ...SessionOption) (*voting.Session, error) {
	moc, oss := s.config.Moc, s.config.Oss
	ret := &voting.Session{
		ID:         idgen.New(),
		ProposalID: proposalID,
		Title:      title,
		Moc:        &moc,
		Oss:        &oss,
		Status:     voting.SessionOpen,
		CreatedAt:  s.now(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.Moc.EligibleWeight <= 0 || ret.Oss.EligibleWeight <= 0 {
		return nil, fmt.Errorf("voting: eligible weight must be positive for both houses")
	}
	if err := s.sessions.Save(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (*voting.Session, error) {
	ret, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, types.NewNotFoundError(entityKind, id)
	}
	return ret, nil
}

// List returns sessions matching the supplied parameters.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*voting.Session, error) {
	return s.sessions.List(ctx, parameters...)
}

// CastVote records a weighted ballot. Each voter casts at most one ballot per
// session and votes are only accepted while the session is open.
func (s *Service) CastVote(ctx context.Context, sessionID string, vote voting.Vote) (*voting.Session, error) {
	if vote.Weight <= 0 {
		return nil, fmt.Errorf("voting: vote weight must be positive, had %v", vote.Weight)
	}
	switch vote.House {
	case voting.HouseMossCoin, voting.HouseOpenSource:
	default:
		return nil, fmt.Errorf("voting: unknown house: %v", vote.House)
	}
	switch vote.Choice {
	case voting.ChoiceFor, voting.ChoiceAgainst, voting.ChoiceAbstain:
	default:
		return nil, fmt.Errorf("voting: unknown choice: %v", vote.Choice)
	}
	return s.sessions.Mutate(ctx, sessionID, func(session *voting.Session) error {
		if session.Status != voting.SessionOpen {
			return types.NewInvalidTransitionError(entityKind, sessionID, string(session.Status), "castVote")
		}
		for _, cast := range session.Votes {
			if cast.VoterID == vote.VoterID && cast.House == vote.House {
				return types.NewDuplicateError("vote", vote.VoterID)
			}
		}
		if vote.CastAt.IsZero() {
			vote.CastAt = s.now()
		}
		session.Votes = append(session.Votes, vote)
		return nil
	})
}

// Tally computes the deterministic outcome of one house from the cast votes:
// participation is the fraction of eligible weight that voted (abstentions
// count), quorum compares participation against the house quorum, and the
// house passes when quorum is reached and the for share of decisive votes
// meets the threshold.
func Tally(house *voting.House, votes []voting.Vote) *voting.HouseTally {
	ret := &voting.HouseTally{House: house.ID}
	for _, vote := range votes {
		if vote.House != house.ID {
			continue
		}
		switch vote.Choice {
		case voting.ChoiceFor:
			ret.For += vote.Weight
		case voting.ChoiceAgainst:
			ret.Against += vote.Weight
		case voting.ChoiceAbstain:
			ret.Abstain += vote.Weight
		}
	}
	if house.EligibleWeight > 0 {
		ret.ParticipationRate = (ret.For + ret.Against + ret.Abstain) / house.EligibleWeight * 100
	}
	ret.QuorumReached = ret.ParticipationRate >= house.QuorumPercent
	if decisive := ret.For + ret.Against; ret.QuorumReached && decisive > 0 {
		ret.Passed = ret.For/decisive*100 >= house.ThresholdPercent
	}
	return ret
}

// Finalize tallies both houses and closes the session. Divergent outcomes,
// or a quorum failure in exactly one house, park the session in
// awaiting_reconciliation instead of a verdict.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*voting.Session, error) {
	ret, err := s.sessions.Mutate(ctx, sessionID, func(session *voting.Session) error {
		if session.Status != voting.SessionOpen {
			return types.NewInvalidTransitionError(entityKind, sessionID, string(session.Status), "finalize")
		}
		session.MocTally = Tally(session.Moc, session.Votes)
		session.OssTally = Tally(session.Oss, session.Votes)
		finalizedAt := s.now()
		session.FinalizedAt = &finalizedAt

		moc, oss := session.MocTally, session.OssTally
		quorumAsymmetry := moc.QuorumReached != oss.QuorumReached
		diverged := moc.QuorumReached && oss.QuorumReached && moc.Passed != oss.Passed
		switch {
		case diverged || quorumAsymmetry:
			session.RequiresReconciliation = true
			session.Status = voting.SessionReconciliation
		case moc.Passed && oss.Passed:
			session.Status = voting.SessionPassed
			session.Outcome = "passed by both houses"
		default:
			session.Status = voting.SessionRejected
			session.Outcome = "rejected by both houses"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(event.TypeVotingFinalized, ret, "system")
	return ret, nil
}

// AdoptHouseVerdict resolves a reconciliation session by adopting one house's
// outcome, recording the acting director.
func (s *Service) AdoptHouseVerdict(ctx context.Context, sessionID string, house voting.HouseID, actor string) (*voting.Session, error) {
	return s.resolveReconciliation(ctx, sessionID, func(session *voting.Session) error {
		tally := session.HouseTallyFor(house)
		if tally == nil {
			return fmt.Errorf("voting: missing tally for house %v on session %v", house, sessionID)
		}
		if tally.Passed {
			session.Status = voting.SessionPassed
			session.Outcome = fmt.Sprintf("passed, %v verdict adopted by %v", house, actor)
		} else {
			session.Status = voting.SessionRejected
			session.Outcome = fmt.Sprintf("rejected, %v verdict adopted by %v", house, actor)
		}
		return nil
	})
}

// ForceReject resolves a reconciliation session with a rejection.
func (s *Service) ForceReject(ctx context.Context, sessionID, reason string) (*voting.Session, error) {
	return s.resolveReconciliation(ctx, sessionID, func(session *voting.Session) error {
		session.Status = voting.SessionRejected
		session.Outcome = reason
		return nil
	})
}

// RequireRevote rejects the session so a fresh one carries the new vote.
// The prior ballots and tallies stay on record; the replacement session
// starts clean and, should it diverge again, opens its own reconciliation.
func (s *Service) RequireRevote(ctx context.Context, sessionID string) (*voting.Session, error) {
	return s.resolveReconciliation(ctx, sessionID, func(session *voting.Session) error {
		session.Status = voting.SessionRejected
		session.Outcome = "rejected, revote required"
		return nil
	})
}

// ApproveWithConditions resolves a reconciliation session as passed subject
// to the supplied conditions.
func (s *Service) ApproveWithConditions(ctx context.Context, sessionID string, conditions []string) (*voting.Session, error) {
	return s.resolveReconciliation(ctx, sessionID, func(session *voting.Session) error {
		session.Status = voting.SessionPassed
		session.Conditions = append(session.Conditions, conditions...)
		session.Outcome = "passed with conditions"
		return nil
	})
}

func (s *Service) resolveReconciliation(ctx context.Context, sessionID string, apply func(*voting.Session) error) (*voting.Session, error) {
	return s.sessions.Mutate(ctx, sessionID, func(session *voting.Session) error {
		if session.Status != voting.SessionReconciliation {
			return types.NewInvalidTransitionError(entityKind, sessionID, string(session.Status), "reconcile")
		}
		return apply(session)
	})
}

func (s *Service) publish(eventType string, session *voting.Session, actor string) {
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[*voting.Session](s.events)
	if err != nil {
		log.Printf("failed to acquire voting publisher: %v", err)
		return
	}
	ev := event.NewEvent(&event.Context{EntityKind: entityKind, EntityID: session.ID, EventType: eventType, Actor: actor}, session)
	if err = publisher.Publish(context.Background(), ev); err != nil {
		log.Printf("failed to publish %v for %v: %v", eventType, session.ID, err)
	}
}
