package gavel

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mossdao/gavel/model/action"
	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/model/signal"
	"github.com/mossdao/gavel/model/task"
	"github.com/mossdao/gavel/service/approval"
	"github.com/mossdao/gavel/service/consensus"
	"github.com/mossdao/gavel/service/guard"
	"github.com/mossdao/gavel/service/lock"
	"github.com/mossdao/gavel/service/reconcile"
	"github.com/mossdao/gavel/service/retry"
	svoting "github.com/mossdao/gavel/service/voting"
	"github.com/mossdao/gavel/tracing"
)

// Runtime is the operation surface of an assembled engine.
type Runtime struct {
	service *Service

	sweepMux    sync.Mutex
	sweepCancel context.CancelFunc
}

// Locks returns the lock manager.
func (r *Runtime) Locks() *lock.Manager { return r.service.lockManager }

// Approvals returns the approval router.
func (r *Runtime) Approvals() *approval.Router { return r.service.approvalRouter }

// Consensus returns the passive consensus manager.
func (r *Runtime) Consensus() *consensus.Manager { return r.service.consensusManager }

// Voting returns the dual-house voting service.
func (r *Runtime) Voting() *svoting.Service { return r.service.votingService }

// Reconciliation returns the reconciliation manager.
func (r *Runtime) Reconciliation() *reconcile.Manager { return r.service.reconcileManager }

// HighRisk returns the high risk approval manager.
func (r *Runtime) HighRisk() *reconcile.HighRiskManager { return r.service.highRiskManager }

// Retry returns the retry handler.
func (r *Runtime) Retry() *retry.Handler { return r.service.retryHandler }

// Guard returns the anti-abuse guard.
func (r *Runtime) Guard() *guard.Guard { return r.service.abuseGuard }

// ValidateSignal screens an inbound signal through the anti-abuse guard.
func (r *Runtime) ValidateSignal(s *signal.Signal) *signal.ValidationResult {
	return r.service.abuseGuard.ValidateSignal(s)
}

// ProposalRequest describes an action submitted to the engine.
type ProposalRequest struct {
	Type       action.Type
	Actor      string
	Title      string
	Summary    string
	DocumentID string
	Penalty    action.Penalty
	Payload    map[string]interface{}
}

// Proposal is the outcome of submitting a request: either the action was
// locked for review (Action and Review set) or executed directly through the
// retry handler (Result set).
type Proposal struct {
	Locked bool                  `json:"locked"`
	Action *action.LockedAction  `json:"action,omitempty"`
	Review *review.PendingReview `json:"review,omitempty"`
	Result *task.Result          `json:"result,omitempty"`
}

// Propose classifies the request and either locks it behind approvals,
// routing it to reviewers, or executes it right away with retries when the
// classifier does not demand a lock.
func (r *Runtime) Propose(ctx context.Context, request *ProposalRequest) (*Proposal, error) {
	ctx, span := tracing.StartSpan(ctx, "gavel.Propose", "INTERNAL")
	var err error
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"action.type": string(request.Type)})

	s := r.service
	classification := s.classifier.Classify(request.Type, request.Penalty)
	if classification.ShouldLock {
		locked, lockErr := s.lockManager.Lock(ctx, request.Type, request.Actor,
			lock.WithDocumentID(request.DocumentID),
			lock.WithPenalty(request.Penalty),
			lock.WithPayload(request.Payload))
		if lockErr != nil {
			err = lockErr
			return nil, err
		}
		pending, routeErr := s.approvalRouter.Route(ctx, locked, request.Title, request.Summary)
		if routeErr != nil {
			err = routeErr
			return nil, err
		}
		return &Proposal{Locked: true, Action: locked, Review: pending}, nil
	}

	handler, lookupErr := s.registry.Lookup(request.Type)
	if lookupErr != nil {
		err = lookupErr
		return nil, err
	}
	result, runErr := s.retryHandler.ExecuteWithRetry(ctx, string(request.Type), request.Payload, retry.Work(handler))
	if runErr != nil {
		err = runErr
		return nil, err
	}
	return &Proposal{Result: result}, nil
}

// Approve records a reviewer approval on a locked action.
func (r *Runtime) Approve(ctx context.Context, actionID string, record action.ApprovalRecord) (*action.LockedAction, error) {
	return r.service.lockManager.AddApproval(ctx, actionID, record)
}

// Execute runs an approved action through its registered handler.
func (r *Runtime) Execute(ctx context.Context, actionID, actor string) (interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "gavel.Execute", "INTERNAL")
	var err error
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"action.id": actionID})

	locked, getErr := r.service.lockManager.Get(ctx, actionID)
	if getErr != nil {
		err = getErr
		return nil, err
	}
	handler, lookupErr := r.service.registry.Lookup(locked.Type)
	if lookupErr != nil {
		err = lookupErr
		return nil, err
	}
	output, execErr := r.service.lockManager.Execute(ctx, actionID, actor, handler)
	if execErr != nil {
		err = execErr
		return nil, err
	}
	return output, nil
}

// StartSweeper begins the background expiry sweep at the configured interval
// and keeps running until ctx is cancelled or Shutdown is called.
func (r *Runtime) StartSweeper(ctx context.Context) {
	r.sweepMux.Lock()
	defer r.sweepMux.Unlock()
	if r.sweepCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.sweepCancel = cancel
	interval := r.service.config.Sweep.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Shutdown stops the background sweeper.
func (r *Runtime) Shutdown() {
	r.sweepMux.Lock()
	defer r.sweepMux.Unlock()
	if r.sweepCancel != nil {
		r.sweepCancel()
		r.sweepCancel = nil
	}
}

// Sweep performs one expiry pass over locks, consensus items, memos and
// review reminders. Failures are logged, a failing sweep target does not
// starve the remaining ones.
func (r *Runtime) Sweep(ctx context.Context) {
	s := r.service
	if _, err := s.lockManager.ProcessExpiredLocks(ctx); err != nil {
		log.Printf("sweep: expired locks: %v", err)
	}
	if _, err := s.consensusManager.ProcessExpiredItems(ctx); err != nil {
		log.Printf("sweep: expired consensus items: %v", err)
	}
	if _, err := s.reconcileManager.ExpireOldMemos(ctx); err != nil {
		log.Printf("sweep: expired memos: %v", err)
	}
	if _, err := s.approvalRouter.SendReminders(ctx); err != nil {
		log.Printf("sweep: review reminders: %v", err)
	}
	s.abuseGuard.Cleanup()
}
