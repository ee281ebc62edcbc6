package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/servermark/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Invoker is the request/response half of the backend connection. Stores only
// depend on this.
type Invoker interface {
	Invoke(ctx context.Context, command string, args any, out any) error
}

// EventSink receives the event frames the backend pushes.
type EventSink interface {
	Emit(name string, payload any) error
}

type Client interface {
	Invoker
	Spec() Spec
	Handshake() protocol.Handshake
	Supports(command string) bool
	Close(ctx context.Context) error
}

type client struct {
	spec Spec
	hs   protocol.Handshake
	sink EventSink

	cmd             *exec.Cmd
	stdin           io.WriteCloser
	stdout          *bufio.Reader
	stderr          io.ReadCloser
	shutdownTimeout time.Duration

	writerMu sync.Mutex
	router   *router
	nextID   uint64

	startOnce sync.Once
	closing   atomic.Bool
}

func newClient(spec Spec, hs protocol.Handshake, sink EventSink, cmd *exec.Cmd, stdin io.WriteCloser, stdout *bufio.Reader, stderr io.ReadCloser, shutdownTimeout time.Duration) *client {
	return &client{
		spec:            spec,
		hs:              hs,
		sink:            sink,
		cmd:             cmd,
		stdin:           stdin,
		stdout:          stdout,
		stderr:          stderr,
		shutdownTimeout: shutdownTimeout,
		router:          newRouter(),
	}
}

func (c *client) start() {
	c.startOnce.Do(func() {
		go c.readStdoutLoop()
		if c.stderr != nil {
			go c.readStderrLoop()
		}
	})
}

func (c *client) Spec() Spec                      { return c.spec }
func (c *client) Handshake() protocol.Handshake   { return c.hs }
func (c *client) Close(ctx context.Context) error { return c.close(ctx) }

// Supports reports whether the handshake declared command. A backend that
// declares no commands at all is assumed to support everything.
func (c *client) Supports(command string) bool {
	if len(c.hs.Capabilities.Commands) == 0 {
		return true
	}
	return contains(c.hs.Capabilities.Commands, command)
}

func (c *client) Invoke(ctx context.Context, command string, args any, out any) error {
	if !c.Supports(command) {
		return &OpError{
			Backend: c.spec.Name,
			Command: command,
			Code:    protocol.ErrUnsupported,
			Message: "command not declared in handshake capabilities",
		}
	}

	var argBytes json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return errors.Wrapf(err, "marshal %s args", command)
		}
		argBytes = b
	}

	rid := c.nextRequestID()
	respCh := c.router.register(rid)

	req := protocol.Request{
		Type:      protocol.FrameRequest,
		RequestID: rid,
		Command:   command,
		Ctx:       requestContextFrom(ctx),
		Args:      argBytes,
	}

	log.Debug().Str("backend", c.spec.Name).Str("command", command).Str("request_id", rid).Msg("invoke")
	if err := c.writeFrame(req); err != nil {
		c.router.cancel(rid)
		return errors.Wrapf(err, "write %s request", command)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return errors.New("request canceled")
		}
		if !resp.Ok {
			if resp.Error != nil {
				return &OpError{
					Backend: c.spec.Name,
					Command: command,
					Code:    resp.Error.Code,
					Message: resp.Error.Message,
					Details: resp.Error.Details,
				}
			}
			return &OpError{Backend: c.spec.Name, Command: command, Code: protocol.ErrCommandFailed, Message: "backend returned ok=false without error"}
		}
		if out != nil && len(resp.Output) > 0 {
			if err := json.Unmarshal(resp.Output, out); err != nil {
				return errors.Wrapf(err, "decode %s output", command)
			}
		}
		return nil
	case <-ctx.Done():
		c.router.cancel(rid)
		return ctx.Err()
	}
}

func (c *client) nextRequestID() string {
	n := atomic.AddUint64(&c.nextID, 1)
	return c.spec.Name + "-" + strconv.FormatUint(n, 10)
}

func (c *client) writeFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writerMu.Lock()
	defer c.writerMu.Unlock()
	_, err = c.stdin.Write(append(b, '\n'))
	return err
}

func (c *client) readStdoutLoop() {
	for {
		line, err := c.stdout.ReadBytes('\n')
		if err != nil {
			c.router.failAll(err)
			if !c.closing.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Error().Err(err).Str("backend", c.spec.Name).Msg("stdout read error")
			}
			return
		}
		if len(line) > 0 && line[len(line)-1] == '\n' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			continue
		}

		var envelope struct {
			Type protocol.FrameType `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			c.router.failAll(errors.Wrapf(err, "%s: %s", protocol.ErrProtocolStdoutContamination, string(line)))
			return
		}

		switch envelope.Type {
		case protocol.FrameResponse:
			var resp protocol.Response
			if err := json.Unmarshal(line, &resp); err != nil {
				c.router.failAll(err)
				return
			}
			c.router.deliver(resp.RequestID, resp)
		case protocol.FrameEvent:
			var ev protocol.Event
			if err := json.Unmarshal(line, &ev); err != nil {
				c.router.failAll(err)
				return
			}
			c.emit(ev)
		case protocol.FrameHandshake, protocol.FrameRequest:
			c.router.failAll(errors.Errorf("%s: unexpected frame type %q", protocol.ErrProtocolUnexpectedFrame, envelope.Type))
			return
		default:
			c.router.failAll(errors.Errorf("%s: unknown frame type %q", protocol.ErrProtocolUnexpectedFrame, envelope.Type))
			return
		}
	}
}

func (c *client) emit(ev protocol.Event) {
	if ev.Event == "" {
		return
	}
	if c.sink == nil {
		log.Debug().Str("backend", c.spec.Name).Str("event", ev.Event).Msg("no event sink; dropping event")
		return
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	if err := c.sink.Emit(ev.Event, payload); err != nil {
		log.Warn().Err(err).Str("backend", c.spec.Name).Str("event", ev.Event).Msg("failed to emit backend event")
	}
}

func (c *client) readStderrLoop() {
	r := bufio.NewReader(c.stderr)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if c.closing.Load() || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return
			}
			log.Error().Err(err).Str("backend", c.spec.Name).Msg("stderr read error")
			return
		}
		if len(line) > 0 && line[len(line)-1] == '\n' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			continue
		}
		log.Info().Str("backend", c.spec.Name).Msg(string(line))
	}
}

// close stops the backend. ctx cuts the graceful shutdown short; the
// process group is killed when it ends.
func (c *client) close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.stdin.Close()
	c.router.failAll(errors.New("client closed"))
	if c.cmd == nil {
		return nil
	}
	if err := terminateProcessGroup(ctx, c.cmd, c.shutdownTimeout); err != nil {
		log.Debug().Err(err).Str("backend", c.spec.Name).Msg("backend exit")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func requestContextFrom(ctx context.Context) protocol.RequestContext {
	rc := protocol.RequestContext{}
	if deadline, ok := ctx.Deadline(); ok {
		rc.DeadlineMs = time.Until(deadline).Milliseconds()
		if rc.DeadlineMs < 0 {
			rc.DeadlineMs = 0
		}
	}
	rc.Origin = originFromContext(ctx)
	return rc
}
