package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"qs_chat/internal/model"
	"qs_chat/internal/utils/backoff"
	"qs_chat/internal/utils/log"
)

var (
	// ErrClosed is returned once Close has run; no reconnect is scheduled
	// and no further events fire.
	ErrClosed = errors.New("connection manager closed")

	// ErrNotConnected is returned by Send while no live transport exists.
	// Connection loss is never fatal; the reconnect machine handles it.
	ErrNotConnected = errors.New("not connected")
)

type (
	// Conn is a live duplex channel to the relay. gorilla's *websocket.Conn
	// satisfies it directly.
	Conn interface {
		ReadJSON(v any) error
		WriteJSON(v any) error
		Close() error
	}

	// Transport dials the relay on behalf of a user.
	Transport interface {
		Dial(ctx context.Context, userID string) (Conn, error)
	}

	// Manager owns the connection state machine:
	//
	//	disconnected -> connecting -> connected
	//
	// with any state able to drop to error, and error/disconnected
	// re-entering connecting via backoff reconnect. Nothing outside this
	// type mutates the state.
	Manager struct {
		transport Transport
		userID    string
		cfg       *backoff.Config

		mu             sync.Mutex
		state          model.ConnectionState
		peerCount      int
		lastTransition time.Time
		conn           Conn
		timer          *time.Timer
		attempt        int
		closed         bool
		delays         []time.Duration // scheduled backoff delays, for tests

		states    chan model.StateChange
		announces chan model.Announce

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
)

func NewManager(transport Transport, userID string, cfg *backoff.Config) *Manager {
	if cfg == nil {
		cfg = backoff.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		transport:      transport,
		userID:         userID,
		cfg:            cfg,
		state:          model.StateDisconnected,
		lastTransition: time.Now(),
		states:         make(chan model.StateChange, 64),
		announces:      make(chan model.Announce, 64),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect performs the initial dial. Failure is not fatal: the manager drops
// to error and schedules a backoff reconnect.
func (m *Manager) Connect() error {
	return m.attemptConnect()
}

// Reconnect cancels any pending scheduled attempt and dials immediately.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.attempt = 0
	m.mu.Unlock()
	return m.attemptConnect()
}

// Send writes an announce frame to the relay.
func (m *Manager) Send(frame *model.Announce) error {
	m.mu.Lock()
	conn := m.conn
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(frame)
}

// States is the connection-state event stream, carrying the updated peer
// count on every transition.
func (m *Manager) States() <-chan model.StateChange {
	return m.states
}

// Announcements is the inbound frame stream. Wire order is not guaranteed;
// the ledger reconciles ordering downstream. A consumer that stalls past the
// channel buffer blocks further reads instead of losing frames.
func (m *Manager) Announcements() <-chan model.Announce {
	return m.announces
}

// State returns the current state, peer count and last transition time.
func (m *Manager) State() (model.ConnectionState, int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.peerCount, m.lastTransition
}

// Close cancels any pending reconnect timer and in-flight dial, releases the
// transport and drains the read loop. No event fires after Close returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()

	close(m.states)
	close(m.announces)
	return nil
}

func (m *Manager) attemptConnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.transition(model.StateConnecting)
	m.mu.Unlock()

	conn, err := m.transport.Dial(m.ctx, m.userID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		m.transition(model.StateError)
		m.scheduleReconnect()
		m.mu.Unlock()
		return err
	}
	if m.conn != nil {
		// A manual reconnect while connected replaces the transport; the
		// old read loop exits on its own once the conn closes.
		m.conn.Close()
	}
	m.conn = conn
	m.attempt = 0
	m.transition(model.StateConnected)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.readLoop(conn)
	return nil
}

// scheduleReconnect arms the backoff timer. Caller holds m.mu.
func (m *Manager) scheduleReconnect() {
	if m.closed || m.timer != nil {
		return
	}
	if m.cfg.Exhausted(m.attempt) {
		return
	}
	delay := m.cfg.Delay(m.attempt)
	m.attempt++
	m.delays = append(m.delays, delay)
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.timer = nil
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		if err := m.attemptConnect(); err != nil && !errors.Is(err, ErrClosed) {
			log.Debug("reconnect attempt failed", zap.Error(err))
		}
	})
}

func (m *Manager) readLoop(conn Conn) {
	defer m.wg.Done()
	for {
		var frame model.Announce
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()

			m.mu.Lock()
			if m.closed || m.conn != conn {
				// Shutdown, or a newer connection already took over.
				m.mu.Unlock()
				return
			}
			m.conn = nil
			log.Debug("relay socket closed", zap.Error(err))
			m.transition(model.StateError)
			m.scheduleReconnect()
			m.mu.Unlock()
			return
		}

		if frame.Type == model.FramePresence {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			m.peerCount = frame.PeerCount
			m.emitState()
			m.mu.Unlock()
			continue
		}

		// Backpressure: a stalled consumer parks the read loop here rather
		// than losing the frame; Close releases it.
		select {
		case m.announces <- frame:
		case <-m.ctx.Done():
			return
		}
	}
}

// transition updates the state and pushes a change event. Caller holds m.mu.
func (m *Manager) transition(next model.ConnectionState) {
	if m.state == next {
		return
	}
	m.state = next
	m.lastTransition = time.Now()
	if next != model.StateConnected {
		m.peerCount = 0
	}
	m.emitState()
}

// emitState pushes the current state without blocking the caller. Caller
// holds m.mu.
func (m *Manager) emitState() {
	change := model.StateChange{
		State:     m.state,
		PeerCount: m.peerCount,
		At:        m.lastTransition,
	}
	select {
	case m.states <- change:
	default:
	}
}

// scheduledDelays exposes the backoff history to package tests.
func (m *Manager) scheduledDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}
