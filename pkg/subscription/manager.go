// Package subscription keeps at most one listener per event name for its
// owner, no matter how many call sites ask for it.
package subscription

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrReleased is returned to callers waiting on a subscribe round that was
// overtaken by Release.
var ErrReleased = stderrors.New("subscription released")

type State int

const (
	Unsubscribed State = iota
	Subscribing
	Subscribed
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// attempt is shared by every caller that arrives while a subscribe round is in
// flight.
type attempt struct {
	done chan struct{}
	err  error
}

type Manager struct {
	owner    string
	listener events.Listener
	handler  events.Handler
	names    []string

	mu      sync.Mutex
	state   State
	pending *attempt
	handles []events.Unlisten
	cancel  context.CancelFunc
	gen     uint64
}

// New creates a manager that routes every event in names to handler once
// Ensure has succeeded. owner only labels log lines.
func New(owner string, listener events.Listener, handler events.Handler, names ...string) *Manager {
	return &Manager{
		owner:    owner,
		listener: listener,
		handler:  handler,
		names:    append([]string{}, names...),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure subscribes to every event name unless that already happened. Calls
// that arrive while a subscribe round is running wait for that same round. A
// failed round leaves the manager unsubscribed so the next call retries.
//
// ctx only bounds the wait; the listeners themselves live until Release.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Subscribed:
		m.mu.Unlock()
		return nil
	case Subscribing:
		a := m.pending
		m.mu.Unlock()
		return wait(ctx, a)
	}

	a := &attempt{done: make(chan struct{})}
	m.state = Subscribing
	m.pending = a
	m.gen++
	gen := m.gen
	listenCtx, cancel := context.WithCancel(context.Background())
	m.mu.Unlock()

	go m.subscribe(listenCtx, cancel, gen, a)
	return wait(ctx, a)
}

func (m *Manager) subscribe(ctx context.Context, cancel context.CancelFunc, gen uint64, a *attempt) {
	handles := make([]events.Unlisten, 0, len(m.names))
	var err error
	for _, name := range m.names {
		unlisten, lerr := m.listener.Listen(ctx, name, m.handler)
		if lerr != nil {
			err = errors.Wrapf(lerr, "listen %s", name)
			break
		}
		handles = append(handles, once(unlisten))
	}

	m.mu.Lock()
	stale := m.gen != gen
	switch {
	case stale:
		if err == nil {
			err = ErrReleased
		}
	case err != nil:
		m.state = Unsubscribed
		m.pending = nil
	default:
		m.state = Subscribed
		m.pending = nil
		m.handles = handles
		m.cancel = cancel
	}
	m.mu.Unlock()

	if err != nil {
		for _, h := range handles {
			h()
		}
		cancel()
		if !stale {
			log.Warn().Err(err).Str("owner", m.owner).Msg("event subscription failed")
		}
	} else {
		log.Debug().Str("owner", m.owner).Strs("events", m.names).Msg("subscribed")
	}

	a.err = err
	close(a.done)
}

// Release drops every listener and returns to Unsubscribed, so a later Ensure
// subscribes again. A round still in flight is abandoned and its listeners are
// dropped as soon as it finishes.
func (m *Manager) Release() {
	m.mu.Lock()
	handles := m.handles
	cancel := m.cancel
	m.handles = nil
	m.cancel = nil
	m.pending = nil
	m.state = Unsubscribed
	m.gen++
	m.mu.Unlock()

	for _, h := range handles {
		h()
	}
	if cancel != nil {
		cancel()
	}
}

func wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func once(u events.Unlisten) events.Unlisten {
	var o sync.Once
	return func() {
		o.Do(func() {
			if u != nil {
				u()
			}
		})
	}
}
