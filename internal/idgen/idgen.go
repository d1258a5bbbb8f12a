package idgen

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// MemoID renders a reconciliation memo document id in the RC-YYYYMMDD-NNN
// format. seq is the 1-based ordinal of the memo within the given day.
func MemoID(day time.Time, seq int) string {
	return fmt.Sprintf("RC-%s-%03d", day.Format("20060102"), seq)
}

// ParseMemoID extracts the day and ordinal from a memo document id.
func ParseMemoID(id string) (time.Time, int, error) {
	var datePart string
	var seq int
	if _, err := fmt.Sscanf(id, "RC-%8s-%03d", &datePart, &seq); err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid memo id %q: %w", id, err)
	}
	day, err := time.Parse("20060102", datePart)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid memo id %q: %w", id, err)
	}
	return day, seq, nil
}
