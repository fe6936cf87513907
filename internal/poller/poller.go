// Package poller drives periodic read cycles against the heat-pump
// controller. One cycle reads every planned request group sequentially,
// decodes what it got, and commits the merged result to the snapshot store.
// Cycles never overlap; the interval is measured from the end of one cycle to
// the start of the next.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ovum-tools/acp-poller/internal/decode"
	"github.com/ovum-tools/acp-poller/internal/regmap"
	"github.com/ovum-tools/acp-poller/internal/snapshot"
	"github.com/ovum-tools/acp-poller/internal/transport"
)

// State is the scheduler's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBackingOff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBackingOff:
		return "backing off"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is the slice of the transport the scheduler drives.
type Session interface {
	ReadRegisters(start, count uint16) ([]uint16, error)
	Backoff() time.Duration
	Close() error
}

// SessionFactory builds a session for a connection descriptor. One session
// per descriptor; changing host, port or unit id means a new session.
type SessionFactory func(transport.Config) Session

// Config is the scheduler's startup configuration.
type Config struct {
	Connection transport.Config
	Interval   time.Duration
	Plan       regmap.PlanOptions
}

// Scheduler owns the poll loop.
type Scheduler struct {
	groups  []regmap.RequestGroup
	store   *snapshot.Store
	factory SessionFactory

	interval atomic.Int64 // nanoseconds, read fresh at each cycle boundary
	state    atomic.Int32

	mu      sync.Mutex // guards conn, pending, session, lifecycle fields below
	conn    transport.Config
	pending *transport.Config // connection change awaiting the next cycle boundary
	session Session
	cancel  context.CancelFunc
	done    chan struct{}

	onCommit func(snapshot.View)
}

// New builds a scheduler over the enabled subset of the register map.
func New(m *regmap.Map, store *snapshot.Store, cfg Config) (*Scheduler, error) {
	return newScheduler(m, store, cfg, func(c transport.Config) Session {
		return transport.New(c)
	})
}

func newScheduler(m *regmap.Map, store *snapshot.Store, cfg Config, factory SessionFactory) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	enabled := m.Enabled()
	if len(enabled) == 0 {
		return nil, errors.New("poller: register map has no enabled registers")
	}

	s := &Scheduler{
		groups:  regmap.PlanRequests(enabled, cfg.Plan),
		store:   store,
		factory: factory,
		conn:    cfg.Connection,
		session: factory(cfg.Connection),
	}
	s.interval.Store(int64(cfg.Interval))
	s.state.Store(int32(StateStopped))
	return s, nil
}

// OnCommit registers a hook called after each cycle's snapshot commit with a
// read-only view. Must be set before Start.
func (s *Scheduler) OnCommit(fn func(snapshot.View)) {
	s.onCommit = fn
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Interval returns the currently configured poll interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Groups returns the planned request groups. For introspection; the slice is
// shared, callers must not modify it.
func (s *Scheduler) Groups() []regmap.RequestGroup {
	return s.groups
}

// Start launches the poll loop. The first cycle runs immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("poller: already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.Store(int32(StateIdle))

	go s.run(ctx, s.done)
	return nil
}

// Stop halts the loop from any state. An in-flight cycle finishes its current
// request but issues no further groups; any scheduled cycle is discarded. The
// transport session is closed. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	if s.session != nil {
		_ = s.session.Close()
	}
	s.mu.Unlock()

	s.state.Store(int32(StateStopped))
}

// Configure applies a new connection descriptor. An interval change takes
// effect at the next cycle boundary without touching the session. A host,
// port or unit id change is also deferred to the next cycle boundary, where
// the poll goroutine tears down the old session and dials the new peer. The
// session has a single caller at all times; Configure never touches it.
func (s *Scheduler) Configure(host string, port int, unitID byte, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poller: interval must be > 0, got %v", interval)
	}
	s.interval.Store(int64(interval))

	s.mu.Lock()
	defer s.mu.Unlock()

	next := transport.Config{Host: host, Port: port, UnitID: unitID, Timeout: s.conn.Timeout}
	if next == s.conn {
		// Back to the current peer; a still-pending change is obsolete.
		s.pending = nil
		return nil
	}

	log.Printf("poller: connection changing %s -> %s at next cycle", s.conn.Endpoint(), next.Endpoint())
	s.pending = &next
	return nil
}

// applyPending swaps in a pending connection change. Called only from the
// cycle path, so the old session is idle when it is closed.
func (s *Scheduler) applyPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return
	}
	if s.session != nil {
		_ = s.session.Close()
	}
	s.conn = *s.pending
	s.pending = nil
	s.session = s.factory(s.conn)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.state.Store(int32(StatePolling))
		attempted, transportFailed := s.runCycle(ctx)

		if ctx.Err() != nil {
			return
		}

		// Reschedule from the end of the cycle so a slow device never
		// causes request pile-up.
		wait := time.Duration(s.interval.Load())
		if attempted > 0 && transportFailed == attempted {
			s.state.Store(int32(StateBackingOff))
			if b := s.currentSession().Backoff(); b > wait {
				wait = b
			}
			log.Printf("poller: all %d request groups failed, next attempt in %v", attempted, wait)
		} else {
			s.state.Store(int32(StateIdle))
		}
		timer.Reset(wait)
	}
}

// runCycle executes one poll cycle. A failing request group is recorded
// against its registers only; the remaining groups still run. Returns how
// many groups were attempted and how many of those failed at the transport
// level.
func (s *Scheduler) runCycle(ctx context.Context) (attempted, transportFailed int) {
	s.applyPending()

	upd := snapshot.Update{At: time.Now()}

	for _, g := range s.groups {
		// A stop request takes effect between requests, never mid-socket.
		if ctx.Err() != nil {
			break
		}
		attempted++

		words, err := s.currentSession().ReadRegisters(g.Start, g.Count)
		if err != nil {
			if transport.IsTransient(err) {
				transportFailed++
			}
			upd.Failed = append(upd.Failed, g.Keys()...)
			log.Printf("poller: group %d+%d: %v", g.Start, g.Count, err)
			continue
		}

		for _, d := range g.Descriptors {
			off := int(d.Address - g.Start)
			v, err := decode.Decode(d, words[off:off+int(d.Words)])
			if err != nil {
				upd.Failed = append(upd.Failed, d.Key)
				log.Printf("poller: %v", err)
				continue
			}
			upd.Readings = append(upd.Readings, snapshot.Reading{
				Key:       d.Key,
				Name:      d.Name,
				Value:     v,
				Unit:      d.Unit,
				Group:     d.Group,
				Timestamp: upd.At,
			})
		}
	}

	s.store.Apply(upd)
	if s.onCommit != nil {
		s.onCommit(s.store.Current())
	}
	return attempted, transportFailed
}

func (s *Scheduler) currentSession() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}
