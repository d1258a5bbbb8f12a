package gavel

import (
	"context"
	"log"

	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/model/voting"
	"github.com/mossdao/gavel/service/approval"
	"github.com/mossdao/gavel/service/audit"
	"github.com/mossdao/gavel/service/consensus"
	"github.com/mossdao/gavel/service/event"
	"github.com/mossdao/gavel/service/executor"
	"github.com/mossdao/gavel/service/guard"
	"github.com/mossdao/gavel/service/lock"
	"github.com/mossdao/gavel/service/messaging"
	"github.com/mossdao/gavel/service/messaging/fs"
	"github.com/mossdao/gavel/service/reconcile"
	"github.com/mossdao/gavel/service/retry"
	"github.com/mossdao/gavel/service/risk"
	svoting "github.com/mossdao/gavel/service/voting"
)

// Service assembles the governance engine. Collaborators not supplied through
// options fall back to in-memory defaults, making the zero configuration
// engine fully functional for embedding and tests.
type Service struct {
	config *Config

	runtime          *Runtime
	classifier       *risk.Classifier
	trail            *audit.Trail
	eventService     *event.Service
	lockManager      *lock.Manager
	approvalRouter   *approval.Router
	consensusManager *consensus.Manager
	votingService    *svoting.Service
	reconcileManager *reconcile.Manager
	highRiskManager  *reconcile.HighRiskManager
	retryHandler     *retry.Handler
	abuseGuard       *guard.Guard
	registry         *executor.Registry
	notifications    messaging.Queue[review.Notification]
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.ensureBaseSetup(); err != nil {
		return err
	}
	s.runtime = &Runtime{service: s}
	s.wireReconciliation()
	return nil
}

func (s *Service) ensureBaseSetup() error {
	if s.classifier == nil {
		s.classifier = risk.New()
	}
	if s.trail == nil {
		s.trail = audit.NewTrail()
	}
	if s.eventService == nil {
		var opts []event.Option
		if s.config.Queue.Vendor == messaging.VendorFs {
			basePath := s.config.Queue.BasePath
			opts = append(opts, event.WithFsQueueConfig(func(name string) fs.Config {
				cfg := fs.DefaultConfig()
				cfg.BasePath = basePath + "/" + name
				return cfg
			}))
		}
		eventService, err := event.New(s.config.Queue.Vendor, opts...)
		if err != nil {
			return err
		}
		s.eventService = eventService
	}
	if s.notifications == nil {
		queue, err := event.QueueOf[review.Notification](s.eventService, "notifications")
		if err != nil {
			return err
		}
		s.notifications = queue
	}
	if s.registry == nil {
		s.registry = executor.NewRegistry()
	}
	if s.abuseGuard == nil {
		s.abuseGuard = guard.New(s.config.Guard)
	}
	if s.lockManager == nil {
		s.lockManager = lock.New(s.config.Lock, s.classifier, s.trail,
			lock.WithEventService(s.eventService))
	}
	if s.approvalRouter == nil {
		s.approvalRouter = approval.New(s.config.Approval,
			approval.WithNotificationQueue(s.notifications))
	}
	if s.consensusManager == nil {
		s.consensusManager = consensus.New(s.config.Consensus,
			consensus.WithEventService(s.eventService))
	}
	if s.votingService == nil {
		s.votingService = svoting.New(s.config.Voting,
			svoting.WithEventService(s.eventService))
	}
	if s.reconcileManager == nil {
		s.reconcileManager = reconcile.New(s.config.Reconciliation, s.votingService,
			reconcile.WithEventService(s.eventService))
	}
	if s.highRiskManager == nil {
		s.highRiskManager = reconcile.NewHighRiskManager(s.config.Reconciliation,
			reconcile.WithApprovalEventService(s.eventService))
	}
	if s.retryHandler == nil {
		s.retryHandler = retry.New(s.config.Retry,
			retry.WithEventService(s.eventService))
	}
	return nil
}

// wireReconciliation opens a reconciliation memo whenever a finalized session
// requires one.
func (s *Service) wireReconciliation() {
	err := event.SetListenerOf[*voting.Session](s.eventService, func(ev *event.Event[*voting.Session]) {
		if ev.Context == nil || ev.Context.EventType != event.TypeVotingFinalized {
			return
		}
		session := ev.Data
		if session == nil || !session.RequiresReconciliation {
			return
		}
		if _, err := s.reconcileManager.TriggerReconciliation(context.Background(), session.ID); err != nil {
			log.Printf("failed to open reconciliation for session %v: %v", session.ID, err)
		}
	})
	if err != nil {
		log.Printf("failed to install reconciliation listener: %v", err)
	}
}

// Runtime returns the engine operation surface.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Registry returns the action handler registry.
func (s *Service) Registry() *executor.Registry {
	return s.registry
}

// EventService returns the typed event hub.
func (s *Service) EventService() *event.Service {
	return s.eventService
}

// AuditTrail returns the audit trail.
func (s *Service) AuditTrail() *audit.Trail {
	return s.trail
}

// Notifications returns the reviewer notification queue.
func (s *Service) Notifications() messaging.Queue[review.Notification] {
	return s.notifications
}

// New creates the governance engine.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
