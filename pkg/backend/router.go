package backend

import (
	"sync"

	"github.com/go-go-golems/servermark/pkg/protocol"
	"github.com/pkg/errors"
)

type router struct {
	mu      sync.Mutex
	pending map[string]chan protocol.Response
	failed  error
}

func newRouter() *router {
	return &router{pending: map[string]chan protocol.Response{}}
}

func (r *router) register(rid string) chan protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan protocol.Response, 1)
	if r.failed != nil {
		ch <- failure(rid, r.failed)
		return ch
	}
	r.pending[rid] = ch
	return ch
}

func (r *router) deliver(rid string, resp protocol.Response) {
	r.mu.Lock()
	ch, ok := r.pending[rid]
	if ok {
		delete(r.pending, rid)
	}
	r.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (r *router) cancel(rid string) {
	r.mu.Lock()
	ch, ok := r.pending[rid]
	if ok {
		delete(r.pending, rid)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// failAll resolves every pending request with err and makes later
// registrations fail immediately.
func (r *router) failAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = err
	}
	for rid, ch := range r.pending {
		delete(r.pending, rid)
		ch <- failure(rid, err)
	}
}

func failure(rid string, err error) protocol.Response {
	return protocol.Response{
		Type:      protocol.FrameResponse,
		RequestID: rid,
		Ok:        false,
		Error: &protocol.Error{
			Code:    protocol.ErrRuntime,
			Message: errors.Wrap(err, "backend").Error(),
		},
	}
}
