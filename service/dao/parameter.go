package dao

import "time"

// Parameter is a list filter. Recognised names depend on the entity; every
// store understands "Status" and the time-range parameters produced by
// NewTimeRange.
type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// TimeRange filters entities whose reference timestamp falls inside [From, To).
type TimeRange struct {
	From time.Time
	To   time.Time
}

// NewTimeRange builds a time-range filter parameter.
func NewTimeRange(name string, from, to time.Time) *Parameter {
	return &Parameter{Name: name, Value: &TimeRange{From: from, To: to}}
}
