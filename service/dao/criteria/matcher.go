package criteria

import (
	"time"

	"github.com/mossdao/gavel/service/dao"
)

// MatchStatus evaluates "Status" parameters against the entity status.
// With no parameters everything matches; a parameter under a different name
// is ignored by this matcher.
func MatchStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter.Name != "Status" {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if status != actual {
				return false
			}
		case []string:
			matched := false
			for _, candidate := range actual {
				if status == candidate {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}

// MatchTime evaluates time-range parameters with the given name against ts.
func MatchTime(name string, ts time.Time, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter.Name != name {
			continue
		}
		r, ok := parameter.Value.(*dao.TimeRange)
		if !ok {
			continue
		}
		if !r.From.IsZero() && ts.Before(r.From) {
			return false
		}
		if !r.To.IsZero() && !ts.Before(r.To) {
			return false
		}
	}
	return true
}
