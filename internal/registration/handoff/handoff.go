// Package handoff carries the outcome of a successful registration from the
// wizard to the confirmation view. The marker is two entries scoped by the
// browsing session: a completion flag and the registration identifier.
//
// There is one writer (the wizard, through a Writer) and one reader (the
// confirmation view, through a Lease). The reader always clears the marker
// when it is done, whatever happened while it held it.
package handoff

import (
	"context"
	"sync"

	"relawan/internal/platform/metrics"
)

// Marker is the handoff payload. The zero value means nothing was handed off.
type Marker struct {
	Completed      bool
	RegistrationID string
}

// Store persists markers per browsing session.
type Store interface {
	// Set writes both entries, replacing any previous marker
	Set(ctx context.Context, session string, m Marker) error

	// Peek reads the marker without clearing it. A missing marker is the zero value.
	Peek(ctx context.Context, session string) (Marker, error)

	// Clear removes both entries. Clearing a missing marker is not an error.
	Clear(ctx context.Context, session string) error
}

// Writer is the wizard's session-scoped handle for publishing a completion.
type Writer struct {
	store   Store
	session string
	metrics *metrics.Metrics
}

func NewWriter(store Store, session string, m *metrics.Metrics) *Writer {
	return &Writer{store: store, session: session, metrics: m}
}

// Complete records that registrationID was created in this session.
func (w *Writer) Complete(ctx context.Context, registrationID string) error {
	err := w.store.Set(ctx, w.session, Marker{Completed: true, RegistrationID: registrationID})
	w.metrics.IncrementHandoff("set", result(err))
	return err
}

// Lease is the reader's hold on a session's marker. Release clears the
// marker exactly once no matter how many times it is called.
type Lease struct {
	store   Store
	session string
	marker  Marker
	metrics *metrics.Metrics

	once       sync.Once
	releaseErr error
}

// Acquire reads the session's marker and returns a lease on it. When the read
// fails the returned lease is still valid and must be released.
func Acquire(ctx context.Context, store Store, session string, m *metrics.Metrics) (*Lease, error) {
	marker, err := store.Peek(ctx, session)
	m.IncrementHandoff("peek", result(err))
	return &Lease{store: store, session: session, marker: marker, metrics: m}, err
}

func (l *Lease) Marker() Marker {
	return l.marker
}

// Release clears the marker. Later calls return the first call's result.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.releaseErr = l.store.Clear(context.WithoutCancel(ctx), l.session)
		l.metrics.IncrementHandoff("clear", result(l.releaseErr))
	})
	return l.releaseErr
}

// Scope runs fn with the session's marker and clears the marker afterwards,
// including when fn returns an error or panics. A failed read still clears.
func Scope(ctx context.Context, store Store, session string, m *metrics.Metrics, fn func(Marker) error) error {
	lease, err := Acquire(ctx, store, session, m)
	defer func() { _ = lease.Release(ctx) }()
	if err != nil {
		return err
	}
	return fn(lease.Marker())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
