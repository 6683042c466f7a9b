package audit

import (
	"iter"

	"github.com/rs/zerolog"
)

// OptionalEvent is a dictionary that is only attached to its parent once a
// field has been written to it.
type OptionalEvent struct {
	ev       *zerolog.Event
	modified bool
}

func NewOptionalEvent(e *zerolog.Event) *OptionalEvent {
	return &OptionalEvent{ev: e}
}

func (oe *OptionalEvent) event() *zerolog.Event {
	if oe.ev == nil {
		oe.ev = zerolog.Dict()
		oe.modified = false
	}
	return oe.ev
}

// Set attaches the dictionary to parent under key if anything was written.
func (oe *OptionalEvent) Set(parent *zerolog.Event, key string) bool {
	if oe.modified {
		parent.Dict(key, oe.event())
		return true
	}
	return false
}

func (oe *OptionalEvent) Str(key, val string) *OptionalEvent {
	if val == "" {
		return oe
	}
	oe.event().Str(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Int(key string, val int) *OptionalEvent {
	if val == 0 {
		return oe
	}
	oe.event().Int(key, val)
	oe.modified = true
	return oe
}

// arr yields nothing for a nil slice; an empty slice still produces an empty
// array.
func arr[T zerolog.LogObjectMarshaler](vals []T) iter.Seq[zerolog.LogObjectMarshaler] {
	if vals == nil {
		return nil
	}

	return func(yield func(zerolog.LogObjectMarshaler) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}
}

func (oe *OptionalEvent) Arr(key string, val iter.Seq[zerolog.LogObjectMarshaler]) *OptionalEvent {
	if val == nil {
		return oe
	}

	arr := zerolog.Arr()
	for v := range val {
		arr.Object(v)
	}

	oe.event().Array(key, arr)
	oe.modified = true

	return oe
}
