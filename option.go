package gavel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mossdao/gavel/model/review"
	"github.com/mossdao/gavel/service/approval"
	"github.com/mossdao/gavel/service/audit"
	"github.com/mossdao/gavel/service/consensus"
	"github.com/mossdao/gavel/service/event"
	"github.com/mossdao/gavel/service/executor"
	"github.com/mossdao/gavel/service/guard"
	"github.com/mossdao/gavel/service/lock"
	"github.com/mossdao/gavel/service/messaging"
	"github.com/mossdao/gavel/service/reconcile"
	"github.com/mossdao/gavel/service/retry"
	"github.com/mossdao/gavel/service/risk"
	svoting "github.com/mossdao/gavel/service/voting"
	"github.com/mossdao/gavel/tracing"
)

// Option customises the engine assembly.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithClassifier sets the risk classifier.
func WithClassifier(classifier *risk.Classifier) Option {
	return func(s *Service) { s.classifier = classifier }
}

// WithAuditTrail sets the audit trail.
func WithAuditTrail(trail *audit.Trail) Option {
	return func(s *Service) { s.trail = trail }
}

// WithEventService sets the event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.eventService = service }
}

// WithLockManager sets the lock manager.
func WithLockManager(manager *lock.Manager) Option {
	return func(s *Service) { s.lockManager = manager }
}

// WithApprovalRouter sets the approval router.
func WithApprovalRouter(router *approval.Router) Option {
	return func(s *Service) { s.approvalRouter = router }
}

// WithConsensusManager sets the passive consensus manager.
func WithConsensusManager(manager *consensus.Manager) Option {
	return func(s *Service) { s.consensusManager = manager }
}

// WithVotingService sets the dual-house voting service.
func WithVotingService(service *svoting.Service) Option {
	return func(s *Service) { s.votingService = service }
}

// WithReconcileManager sets the reconciliation manager.
func WithReconcileManager(manager *reconcile.Manager) Option {
	return func(s *Service) { s.reconcileManager = manager }
}

// WithHighRiskManager sets the high risk approval manager.
func WithHighRiskManager(manager *reconcile.HighRiskManager) Option {
	return func(s *Service) { s.highRiskManager = manager }
}

// WithRetryHandler sets the retry handler.
func WithRetryHandler(handler *retry.Handler) Option {
	return func(s *Service) { s.retryHandler = handler }
}

// WithGuard sets the anti-abuse guard.
func WithGuard(g *guard.Guard) Option {
	return func(s *Service) { s.abuseGuard = g }
}

// WithRegistry sets the action handler registry.
func WithRegistry(registry *executor.Registry) Option {
	return func(s *Service) { s.registry = registry }
}

// WithNotificationQueue sets the reviewer notification queue.
func WithNotificationQueue(queue messaging.Queue[review.Notification]) Option {
	return func(s *Service) { s.notifications = queue }
}

// WithTracing configures OpenTelemetry tracing for the engine. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. Safe to call multiple times, the first successful
// initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling integrations with exporters other than the built-in
// stdout exporter, for example OTLP, Jaeger or Zipkin.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
