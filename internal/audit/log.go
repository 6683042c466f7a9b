package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the level audit entries are written at. Entries are visible when
// the logger admits info.
const Level = zerolog.InfoLevel

type key struct{}

// Call is a single exchange with the Clue API.
type Call struct {
	Method   string
	Path     string
	Status   int
	ETag     string
	Cached   bool
	Duration time.Duration
}

func (c Call) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", c.Method).
		Str("path", c.Path).
		Int("status", c.Status).
		Dur("duration", c.Duration)

	if c.ETag != "" {
		e.Str("etag", c.ETag).Bool("cached", c.Cached)
	}
}

// Entry accumulates what one command did against the server. It is written
// once, when the command ends.
type Entry struct {
	Command       string
	Server        string
	Authenticated bool
	Calls         []Call
	Retries       int
	Error         string

	start time.Time
	mu    sync.Mutex
}

// Context returns the entry attached to ctx, attaching a new one when absent.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, key{}, e), e
}

// Log returns the entry attached to ctx. Without one, the returned entry is
// detached and its updates are discarded.
func Log(ctx context.Context) *Entry {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return e
	}
	return &Entry{}
}

// Begin marks the start of the named command.
func (e *Entry) Begin(command string) {
	e.Command = command
	e.start = time.Now()
}

// Record appends a completed API call.
func (e *Entry) Record(c Call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, c)
}

// Retried counts an additional attempt at a call.
func (e *Entry) Retried() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Retries++
}

// Authorized notes that a credential accompanied a call.
func (e *Entry) Authorized() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Authenticated = true
}

// Fail records err; a nil err is ignored.
func (e *Entry) Fail(err error) {
	if err == nil {
		return
	}
	e.appendError(err.Error())
}

func (e *Entry) appendError(msg string) {
	if e.Error == "" {
		e.Error = msg
		return
	}
	e.Error = e.Error + "; " + msg
}

// End returns a function, intended to be deferred, that writes the entry. A
// panic in progress is recorded and then resumed.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if r := recover(); r != nil {
			e.appendError(fmt.Sprintf("panic: %v", r))
			defer panic(r)
		}

		log.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit")
	}
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	command := zerolog.Dict().
		Str("name", e.Command).
		Str("server", e.Server).
		Bool("authenticated", e.Authenticated)
	if !e.start.IsZero() {
		command.Dur("duration", time.Since(e.start))
	}
	ev.Dict("command", command)

	requests := NewOptionalEvent(nil).
		Int("retries", e.Retries).
		Arr("calls", arr(e.Calls))
	requests.Set(ev, "requests")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}
