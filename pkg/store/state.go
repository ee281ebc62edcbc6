// Package store holds the cached projections of backend state, one store per
// resource family. Every mutation re-reads the affected collection from the
// backend; the busy and operation flags are advisory.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/servermark/pkg/backend"
)

// opState is the busy/error/flags triple every store carries. Busy and the
// named flags are depth counters so nested refreshes don't clear them early.
type opState struct {
	opMu  sync.Mutex
	busy  int
	err   string
	flags map[string]int
}

func (s *opState) Busy() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.busy > 0
}

// LastError is the message of the last failed operation; empty when the
// last operation succeeded.
func (s *opState) LastError() string {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.err
}

// Flag reports whether the named operation is in flight.
func (s *opState) Flag(name string) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.flags[name] > 0
}

// ActiveFlags lists in-flight operation names, sorted.
func (s *opState) ActiveFlags() []string {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ret := make([]string, 0, len(s.flags))
	for k, n := range s.flags {
		if n > 0 {
			ret = append(ret, k)
		}
	}
	sort.Strings(ret)
	return ret
}

// begin clears the error slot and raises busy plus any named flags. The
// returned func lowers them again and is meant to be deferred.
func (s *opState) begin(flags ...string) func() {
	s.opMu.Lock()
	s.err = ""
	s.busy++
	if len(flags) > 0 && s.flags == nil {
		s.flags = map[string]int{}
	}
	for _, f := range flags {
		s.flags[f]++
	}
	s.opMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.opMu.Lock()
			defer s.opMu.Unlock()
			s.busy--
			for _, f := range flags {
				s.flags[f]--
				if s.flags[f] <= 0 {
					delete(s.flags, f)
				}
			}
		})
	}
}

// fail records err in the error slot and hands it back.
func (s *opState) fail(err error) error {
	if err == nil {
		return nil
	}
	s.opMu.Lock()
	s.err = backend.Message(err)
	s.opMu.Unlock()
	return err
}

// Timings control how long progress is kept on screen.
type Timings struct {
	InstallMinDisplay time.Duration
	InstallLinger     time.Duration
	PPAMinDisplay     time.Duration
	PPALinger         time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		InstallMinDisplay: 1500 * time.Millisecond,
		InstallLinger:     500 * time.Millisecond,
		PPAMinDisplay:     0,
		PPALinger:         2000 * time.Millisecond,
	}
}
