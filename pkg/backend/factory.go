package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/go-go-golems/servermark/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Spec describes how to launch the privileged backend process.
type Spec struct {
	Name    string
	Path    string
	Args    []string
	Env     map[string]string
	WorkDir string
}

type FactoryOptions struct {
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration
}

type Factory struct {
	opts FactoryOptions
}

func NewFactory(opts FactoryOptions) *Factory {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 3 * time.Second
	}
	return &Factory{opts: opts}
}

// Start launches the backend, waits for its handshake and starts routing
// responses and events. Events are forwarded to sink.
func (f *Factory) Start(ctx context.Context, spec Spec, sink EventSink) (Client, error) {
	if spec.Path == "" {
		return nil, errors.New("missing backend path")
	}
	if spec.Name == "" {
		spec.Name = "backend"
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start backend %s", spec.Path)
	}

	reader := bufio.NewReader(stdout)
	hs, err := readHandshake(ctx, reader, f.opts.HandshakeTimeout)
	if err != nil {
		_ = terminateProcessGroup(context.Background(), cmd, f.opts.ShutdownTimeout)
		return nil, err
	}

	log.Info().Str("backend", hs.BackendName).Str("version", hs.BackendVersion).Int("pid", cmd.Process.Pid).Msg("backend ready")

	c := newClient(spec, hs, sink, cmd, stdin, reader, stderr, f.opts.ShutdownTimeout)
	c.start()
	return c, nil
}

// Connect speaks the protocol over an already established stream, e.g. a pipe
// to an embedded backend. Close only closes w.
func (f *Factory) Connect(ctx context.Context, spec Spec, r io.Reader, w io.WriteCloser, sink EventSink) (Client, error) {
	if spec.Name == "" {
		spec.Name = "backend"
	}
	reader := bufio.NewReader(r)
	hs, err := readHandshake(ctx, reader, f.opts.HandshakeTimeout)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	c := newClient(spec, hs, sink, nil, w, reader, nil, f.opts.ShutdownTimeout)
	c.start()
	return c, nil
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

func readHandshake(ctx context.Context, r *bufio.Reader, timeout time.Duration) (protocol.Handshake, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	line, err := readLine(ctx, r)
	if err != nil {
		return protocol.Handshake{}, err
	}

	var hs protocol.Handshake
	if err := json.Unmarshal(line, &hs); err != nil {
		return protocol.Handshake{}, errors.Wrapf(err, "%s: %s", protocol.ErrProtocolInvalidJSON, string(line))
	}
	if err := protocol.ValidateHandshake(hs); err != nil {
		return protocol.Handshake{}, err
	}
	return hs, nil
}

func readLine(ctx context.Context, r *bufio.Reader) ([]byte, error) {
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := r.ReadBytes('\n')
		if err == nil {
			b = []byte(strings.TrimSpace(string(b)))
		}
		ch <- result{b: b, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil, errors.Wrap(res.err, "unexpected EOF reading handshake")
			}
			return nil, res.err
		}
		return res.b, nil
	}
}

// terminateProcessGroup sends SIGTERM to the backend's process group and
// escalates to SIGKILL once timeout passes or ctx is done.
func terminateProcessGroup(ctx context.Context, cmd *exec.Cmd, timeout time.Duration) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = cmd.Process.Kill()
	}
	kill := func() {
		if err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = cmd.Process.Kill()
		}
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		kill()
		return errors.New("timeout waiting for backend to exit")
	case <-ctx.Done():
		kill()
		return errors.Wrap(ctx.Err(), "waiting for backend to exit")
	}
}
