// Package progress holds the latest progress record per long-running
// operation kind and decides when it disappears again.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindPPA       Kind = "ppa"
	KindInstall   Kind = "install"
	KindUninstall Kind = "uninstall"
)

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseLingering
)

type slot struct {
	phase phase
	rec   *Record
	timer *time.Timer
	gen   uint64
}

// Projector is written by the owning store and read by everyone else. A kind
// accepts updates from Start until its linger timer fires; after that late
// events are dropped so a cleared record never comes back.
type Projector struct {
	mu      sync.Mutex
	slots   map[Kind]*slot
	closed  bool
	closing chan struct{}
}

func NewProjector() *Projector {
	return &Projector{
		slots:   map[Kind]*slot{},
		closing: make(chan struct{}),
	}
}

func (p *Projector) slot(kind Kind) *slot {
	s, ok := p.slots[kind]
	if !ok {
		s = &slot{}
		p.slots[kind] = s
	}
	return s
}

// Start opens kind for updates. Whatever an earlier operation left behind is
// dropped, including a pending linger clear.
func (p *Projector) Start(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	s := p.slot(kind)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.phase = phaseRunning
	s.rec = nil
}

// Update replaces the record for kind. It reports false when kind is not
// open, i.e. before Start or after the linger has elapsed.
func (p *Projector) Update(kind Kind, rec Record) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	s := p.slot(kind)
	if s.phase == phaseIdle {
		log.Debug().Str("kind", string(kind)).Str("step", rec.Step).Msg("dropping progress outside operation")
		return false
	}
	r := rec
	s.rec = &r
	return true
}

// Finish schedules the record for kind to be cleared after linger. Updates
// keep landing until then. Finish on a kind that was never started is a no-op.
func (p *Projector) Finish(kind Kind, linger time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	s := p.slot(kind)
	if s.phase == phaseIdle {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if linger <= 0 {
		s.phase = phaseIdle
		s.rec = nil
		return
	}
	s.phase = phaseLingering
	gen := s.gen
	s.timer = time.AfterFunc(linger, func() { p.clear(kind, gen) })
}

func (p *Projector) clear(kind Kind, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slot(kind)
	if s.gen != gen {
		return
	}
	s.phase = phaseIdle
	s.rec = nil
	s.timer = nil
}

// Get returns the current record for kind, if any.
func (p *Projector) Get(kind Kind) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[kind]
	if !ok || s.rec == nil {
		return Record{}, false
	}
	return *s.rec, true
}

// Lingering reports whether kind finished and is waiting to be cleared.
func (p *Projector) Lingering(kind Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[kind]
	return ok && s.phase == phaseLingering
}

// Kinds lists the kinds that currently hold a record, sorted.
func (p *Projector) Kinds() []Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]Kind, 0, len(p.slots))
	for k, s := range p.slots {
		if s.rec != nil {
			ret = append(ret, k)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Hold blocks until minimum has passed since started. It returns early once the
// projector is closed.
func (p *Projector) Hold(started time.Time, minimum time.Duration) {
	remaining := minimum - time.Since(started)
	if remaining <= 0 {
		return
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.closing:
	}
}

// Close stops every pending linger timer and drops all records.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.closing)
	for _, s := range p.slots {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.gen++
		s.phase = phaseIdle
		s.rec = nil
	}
}
