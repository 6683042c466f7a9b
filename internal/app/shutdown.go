package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type hookDefinition struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks releases the resources an App acquired. Hooks run in reverse
// order of registration, so a resource is released before the ones it was
// built on, and every hook runs even when an earlier one fails.
type ShutdownHooks struct {
	hooks []hookDefinition
}

// AddContext registers a hook that receives the shutdown context. Nil hooks
// are ignored with a warning logged.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.hooks = append(s.hooks, hookDefinition{name: name, fn: hook})
}

// Add registers a hook that does not need the context, such as a Close
// method.
func (s *ShutdownHooks) Add(name string, hook func() error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return hook()
	})
}

// Execute runs the registered hooks, last added first, and clears them so a
// second call does nothing. Failures are joined into the returned error.
func (s *ShutdownHooks) Execute(ctx context.Context) error {
	l := log.Ctx(ctx)

	var errs []error
	for i := len(s.hooks) - 1; i >= 0; i-- {
		hook := s.hooks[i]

		if err := hook.fn(ctx); err != nil {
			l.Warn().Err(err).Str("hook", hook.name).Msg("shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
			continue
		}
		l.Debug().Str("hook", hook.name).Msg("shutdown complete")
	}
	s.hooks = nil

	return errors.Join(errs...)
}
