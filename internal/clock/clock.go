package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Until returns the duration from Now until t; negative when t is past.
func Until(t time.Time) time.Duration { return t.Sub(Now()) }
