// Package tray turns the tray menu's "start all" and "stop all" intents into
// per-container actions.
package tray

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/go-go-golems/servermark/pkg/subscription"
	"github.com/rs/zerolog/log"
)

type Action string

const (
	ActionStartAll Action = "start-all"
	ActionStopAll  Action = "stop-all"
)

// ContainerStore is the part of the container store the bridge drives.
type ContainerStore interface {
	Containers() []store.Container
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
}

// Result is the outcome of one container action. Err is nil on success.
type Result struct {
	ID   string
	Name string
	Err  error
}

func Failed(results []Result) []Result {
	var ret []Result
	for _, r := range results {
		if r.Err != nil {
			ret = append(ret, r)
		}
	}
	return ret
}

type Options struct {
	// ActionTimeout bounds each intent run triggered from the event channel.
	// Zero means no timeout.
	ActionTimeout time.Duration
	// OnDone is called after every run with its per-container results.
	OnDone func(action Action, results []Result)
}

type Bridge struct {
	containers ContainerStore
	opts       Options
	sub        *subscription.Manager

	runMu sync.Mutex
	wg    sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	lastAction Action
	last       []Result
}

// New creates the bridge and subscribes it to the tray intents.
func New(ctx context.Context, listener events.Listener, containers ContainerStore, opts Options) (*Bridge, error) {
	b := &Bridge{containers: containers, opts: opts}
	b.sub = subscription.New("tray", listener, b.onIntent, events.TrayStartAll, events.TrayStopAll)
	if err := b.sub.Ensure(ctx); err != nil {
		b.sub.Release()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) onIntent(ev events.Event) {
	var action Action
	switch ev.Name {
	case events.TrayStartAll:
		action = ActionStartAll
	case events.TrayStopAll:
		action = ActionStopAll
	default:
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	// The run talks to the backend, whose reader may be the goroutine
	// delivering this event.
	go func() {
		defer b.wg.Done()
		ctx := context.Background()
		if b.opts.ActionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.opts.ActionTimeout)
			defer cancel()
		}
		b.Run(ctx, action)
	}()
}

func (b *Bridge) StartAll(ctx context.Context) []Result { return b.Run(ctx, ActionStartAll) }
func (b *Bridge) StopAll(ctx context.Context) []Result  { return b.Run(ctx, ActionStopAll) }

// Run applies action to every eligible container of a snapshot of the
// cached collection, one at a time. A failing container does not stop the
// run; every outcome is in the returned slice.
func (b *Bridge) Run(ctx context.Context, action Action) []Result {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	ctx = backend.WithOrigin(ctx, "tray")

	var (
		eligible string
		apply    func(context.Context, string) error
	)
	switch action {
	case ActionStartAll:
		eligible, apply = store.ContainerStopped, b.containers.StartContainer
	case ActionStopAll:
		eligible, apply = store.ContainerRunning, b.containers.StopContainer
	default:
		log.Warn().Str("action", string(action)).Msg("unknown tray action")
		return nil
	}

	log.Info().Str("action", string(action)).Msg("tray action start")
	var results []Result
	for _, c := range b.containers.Containers() {
		if c.Status != eligible {
			continue
		}
		err := apply(ctx, c.ID)
		if err != nil {
			log.Error().Err(err).Str("action", string(action)).Str("container", c.Name).Msg("tray action failed for container")
		}
		results = append(results, Result{ID: c.ID, Name: c.Name, Err: err})
	}
	log.Info().Str("action", string(action)).Int("containers", len(results)).Int("failed", len(Failed(results))).Msg("tray action done")

	b.mu.Lock()
	b.lastAction = action
	b.last = results
	b.mu.Unlock()

	if b.opts.OnDone != nil {
		b.opts.OnDone(action, results)
	}
	return results
}

// Last returns the most recent run.
func (b *Bridge) Last() (Action, []Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAction, append([]Result(nil), b.last...)
}

// Close releases the intent subscriptions and waits for runs started by
// intents. It must not be called from OnDone.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.sub.Release()
	b.wg.Wait()
}
