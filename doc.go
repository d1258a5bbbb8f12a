// Package gavel is an embeddable risk-gated governance engine: inbound
// signals pass an anti-abuse guard, proposed actions are classified by risk
// and locked behind tiered approval requirements, and contested decisions
// flow through dual-house voting with Director 3 reconciliation. The engine
// has no transport of its own; it is wired into hosts the same way a library
// service would be, with stores, queues and clocks injectable for tests.
package gavel
