// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// It lives under `internal` because callers should not rely on its exact
// behaviour or API; they should treat identifiers as opaque strings. The
// only exception is the reconciliation memo document id which follows the
// documented RC-YYYYMMDD-NNN format.
package idgen
