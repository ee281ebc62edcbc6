// Package backendtest provides an in-memory command channel for tests.
package backendtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/protocol"
	"github.com/pkg/errors"
)

// HandlerFunc answers one command. args is the JSON the caller sent (nil when
// the command has no arguments); the returned value is round-tripped through
// JSON into the caller's output.
type HandlerFunc func(args json.RawMessage) (any, error)

type Call struct {
	Command string
	Args    json.RawMessage
}

func (c Call) Decode(v any) error {
	if len(c.Args) == 0 {
		return errors.Errorf("%s was called without args", c.Command)
	}
	return json.Unmarshal(c.Args, v)
}

type Fake struct {
	Name string

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
	closed   bool
}

var _ backend.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{Name: "fake", handlers: map[string]HandlerFunc{}}
}

// Handle registers fn for command, replacing any earlier handler.
func (f *Fake) Handle(command string, fn HandlerFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[command] = fn
	return f
}

// Reply makes command always succeed with out.
func (f *Fake) Reply(command string, out any) *Fake {
	return f.Handle(command, func(json.RawMessage) (any, error) { return out, nil })
}

// Fail makes command always fail with message, the way a backend reports it.
func (f *Fake) Fail(command string, message string) *Fake {
	return f.Handle(command, func(json.RawMessage) (any, error) {
		return nil, &backend.OpError{Backend: f.Name, Command: command, Code: protocol.ErrCommandFailed, Message: message}
	})
}

func (f *Fake) Invoke(ctx context.Context, command string, args any, out any) error {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return errors.Wrap(err, "marshal args")
		}
		raw = b
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return &backend.OpError{Backend: f.Name, Command: command, Code: protocol.ErrRuntime, Message: "client closed"}
	}
	f.calls = append(f.calls, Call{Command: command, Args: raw})
	fn, ok := f.handlers[command]
	f.mu.Unlock()

	if !ok {
		return &backend.OpError{Backend: f.Name, Command: command, Code: protocol.ErrUnsupported, Message: "no handler"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := fn(raw)
	if err != nil {
		return err
	}
	if out == nil || res == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "marshal out")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "unmarshal into output")
	}
	return nil
}

// Calls returns every invocation so far, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the command names of Calls.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ret = append(ret, c.Command)
	}
	return ret
}

func (f *Fake) Count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Command == command {
			n++
		}
	}
	return n
}

// Last returns the most recent call of command.
func (f *Fake) Last(command string) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Command == command {
			return f.calls[i], true
		}
	}
	return Call{}, false
}

func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) Spec() backend.Spec { return backend.Spec{Name: f.Name} }

func (f *Fake) Handshake() protocol.Handshake {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmds := make([]string, 0, len(f.handlers))
	for k := range f.handlers {
		cmds = append(cmds, k)
	}
	return protocol.Handshake{
		Type:            protocol.FrameHandshake,
		ProtocolVersion: protocol.ProtocolV1,
		BackendName:     f.Name,
		Capabilities:    protocol.Capabilities{Commands: cmds},
	}
}

func (f *Fake) Supports(command string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[command]
	return ok
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
