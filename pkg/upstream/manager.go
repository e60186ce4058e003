// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/apierr"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/metrics"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultProbeTimeout   = 5 * time.Second
)

var (
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("connection manager closed")
	// ErrNotConnected is returned when no live session is available after a
	// reconnect attempt.
	ErrNotConnected = errors.New("no live upstream session")
)

// State of the upstream session as seen by the manager.
type State int

const (
	StateAbsent State = iota
	StateLive
	StateStale
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateStale:
		return "stale"
	default:
		return "absent"
	}
}

// Snapshot is the tool listing captured when a session was established. It
// is never modified after creation.
type Snapshot struct {
	tools []*mcp.Tool
	names map[string]struct{}
}

func newSnapshot(tools []*mcp.Tool) *Snapshot {
	s := &Snapshot{
		tools: tools,
		names: make(map[string]struct{}, len(tools)),
	}
	for _, t := range tools {
		if t != nil {
			s.names[t.Name] = struct{}{}
		}
	}
	return s
}

// Has reports whether the snapshot advertises a tool called name.
func (s *Snapshot) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Tools returns the listing in upstream order. The slice is a copy.
func (s *Snapshot) Tools() []*mcp.Tool {
	if s == nil {
		return nil
	}
	out := make([]*mcp.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Len is the number of tools in the listing.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// conn pairs a session with its snapshot. Operations hold inUse for reading;
// the session is only closed with inUse held for writing.
type conn struct {
	session  Session
	snapshot *Snapshot
	cancel   context.CancelFunc
	inUse    sync.RWMutex
}

// Status is a non-blocking view of the manager, used by /health.
type Status struct {
	State State
	Tools int
}

// Connected reports whether a live session exists.
func (s Status) Connected() bool {
	return s.State == StateLive
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnectTimeout bounds a connect attempt, handshake and listing included.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithProbeTimeout bounds a single health probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithLogger sets the logger used by the manager.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records connection state on m.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// Manager owns the single upstream session shared by all requests.
//
// At most one session is live at a time. Concurrent reconnect requests share
// a single attempt. A replaced session is closed only after every operation
// that was using it has finished.
type Manager struct {
	opener         Opener
	connectTimeout time.Duration
	probeTimeout   time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics

	// root of every session lifetime, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	cur    *conn
	state  State
	closed bool

	group    singleflight.Group
	attempts sync.WaitGroup
	retiring sync.WaitGroup
}

// NewManager returns a manager with no session. Call Connect to establish one.
func NewManager(opener Opener, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opener:         opener,
		connectTimeout: defaultConnectTimeout,
		probeTimeout:   defaultProbeTimeout,
		logger:         zerolog.Nop(),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "upstream").Logger()
	return m
}

// Connect establishes a new session and captures its tool listing. Callers
// arriving while an attempt is in flight wait for that attempt instead of
// starting another. On success the new session replaces the current one.
//
// Cancelling ctx stops the caller from waiting; the shared attempt is still
// bounded by the connect timeout. Failures are apierr.KindUpstreamConnect.
func (m *Manager) Connect(ctx context.Context) (*Snapshot, error) {
	ch := m.group.DoChan("connect", func() (any, error) {
		return m.connect()
	})
	select {
	case <-ctx.Done():
		return nil, apierr.UpstreamConnect(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (m *Manager) connect() (*Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, apierr.UpstreamConnect(ErrClosed)
	}
	m.attempts.Add(1)
	m.mu.Unlock()
	defer m.attempts.Done()

	start := time.Now()
	sessCtx, cancel := context.WithCancel(m.ctx)
	c, err := m.open(sessCtx)
	m.metrics.ObserveConnect(err)
	if err != nil {
		cancel()
		m.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("upstream connect failed")
		return nil, apierr.UpstreamConnect(err)
	}
	c.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.release(c)
		return nil, apierr.UpstreamConnect(ErrClosed)
	}
	old := m.cur
	m.cur, m.state = c, StateLive
	m.mu.Unlock()

	m.metrics.SetUpstream(true, c.snapshot.Len())
	m.logger.Info().
		Int("tools", c.snapshot.Len()).
		Dur("duration", time.Since(start)).
		Msg("upstream session established")

	if old != nil {
		m.retire(old)
	}
	return c.snapshot, nil
}

// open runs the handshake and initial listing under the connect timeout.
// A session that completes after the deadline is released.
func (m *Manager) open(ctx context.Context) (*conn, error) {
	done := make(chan openResult, 1)

	m.attempts.Add(1)
	go func() {
		defer m.attempts.Done()
		sess, err := m.opener.Open(ctx)
		if err != nil {
			done <- openResult{err: err}
			return
		}
		listCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		tools, err := sess.ListTools(listCtx)
		cancel()
		if err != nil {
			m.closeSession(sess)
			done <- openResult{err: fmt.Errorf("list tools: %w", err)}
			return
		}
		done <- openResult{c: &conn{session: sess, snapshot: newSnapshot(tools)}}
	}()

	timer := time.NewTimer(m.connectTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.c, r.err
	case <-m.ctx.Done():
		m.drain(done)
		return nil, ErrClosed
	case <-timer.C:
		m.drain(done)
		return nil, fmt.Errorf("connect timed out after %s", m.connectTimeout)
	}
}

type openResult struct {
	c   *conn
	err error
}

// drain releases a session from an abandoned attempt if one still arrives.
func (m *Manager) drain(done <-chan openResult) {
	m.attempts.Add(1)
	go func() {
		defer m.attempts.Done()
		if r := <-done; r.c != nil {
			m.closeSession(r.c.session)
		}
	}()
}

// Lease pins the session that was live when it was acquired. The session is
// not closed while the lease is held.
type Lease struct {
	m    *Manager
	c    *conn
	once sync.Once
}

// Session is the pinned session.
func (l *Lease) Session() Session {
	return l.c.session
}

// Snapshot is the tool listing captured with the pinned session.
func (l *Lease) Snapshot() *Snapshot {
	return l.c.snapshot
}

// MarkStale flags the pinned session as stale if it is still the current
// one. A newer session is never affected.
func (l *Lease) MarkStale(cause error) {
	l.m.markStale(l.c, cause)
}

// Release returns the lease. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.c.inUse.RUnlock)
}

// Acquire returns a lease on a live session. When the session is absent or
// stale it makes exactly one reconnect attempt first.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	for attempt := 0; ; attempt++ {
		if l, err := m.tryAcquire(); l != nil || err != nil {
			return l, err
		}
		if attempt > 0 {
			return nil, apierr.UpstreamConnect(ErrNotConnected)
		}
		if _, err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) tryAcquire() (*Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, apierr.UpstreamConnect(ErrClosed)
	}
	if m.state != StateLive {
		return nil, nil
	}
	m.cur.inUse.RLock()
	return &Lease{m: m, c: m.cur}, nil
}

func (m *Manager) markStale(c *conn, cause error) {
	m.mu.Lock()
	if m.cur != c || m.state != StateLive {
		m.mu.Unlock()
		return
	}
	m.state = StateStale
	tools := c.snapshot.Len()
	m.mu.Unlock()

	m.metrics.ObserveStale()
	m.metrics.SetUpstream(false, tools)
	m.logger.Warn().Err(cause).Msg("upstream session marked stale")
}

// CheckHealth probes the current session with a lightweight listing. It
// returns false without probing when no live session exists. A failed probe
// marks the session stale; it never reconnects.
func (m *Manager) CheckHealth(ctx context.Context) bool {
	m.mu.RLock()
	if m.closed || m.state != StateLive {
		m.mu.RUnlock()
		m.metrics.ObserveHealthCheck(false)
		return false
	}
	c := m.cur
	c.inUse.RLock()
	m.mu.RUnlock()
	defer c.inUse.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	_, err := c.session.ListTools(probeCtx)
	m.metrics.ObserveHealthCheck(err == nil)
	if err != nil {
		if ctx.Err() != nil {
			// caller is shutting down
			return false
		}
		m.markStale(c, fmt.Errorf("health probe: %w", err))
		return false
	}
	m.logger.Debug().Msg("upstream health probe ok")
	return true
}

// Status reports the session state without blocking on upstream I/O.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return Status{State: StateAbsent}
	}
	return Status{State: m.state, Tools: m.cur.snapshot.Len()}
}

// CurrentSession returns the current session and its state. The session is
// nil when absent. It is not pinned; use Acquire to operate on it.
func (m *Manager) CurrentSession() (Session, State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil, StateAbsent
	}
	return m.cur.session, m.state
}

// Close releases the current session and aborts any in-flight connect.
// Operations holding a lease finish first. Subsequent calls return nil.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	c := m.cur
	m.cur, m.state = nil, StateAbsent
	m.mu.Unlock()

	var err error
	if c != nil {
		c.inUse.Lock()
		err = c.session.Close()
		c.cancel()
		c.inUse.Unlock()
	}
	m.cancel()
	m.attempts.Wait()
	m.retiring.Wait()
	m.metrics.SetUpstream(false, 0)
	m.logger.Info().Msg("upstream connection manager closed")
	return err
}

// retire closes a replaced session once its in-flight operations drain.
func (m *Manager) retire(c *conn) {
	m.retiring.Add(1)
	go func() {
		defer m.retiring.Done()
		m.release(c)
	}()
}

func (m *Manager) release(c *conn) {
	c.inUse.Lock()
	defer c.inUse.Unlock()
	m.closeSession(c.session)
	if c.cancel != nil {
		c.cancel()
	}
}

func (m *Manager) closeSession(s Session) {
	if err := s.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("closing upstream session")
	}
}
