// internal/transport/manager.go

// Package transport owns the single live server connection. Only the Manager
// may create the socket, mutate its handshake parameters, or destroy it; every
// other component reads connection state or calls Emit.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cardhall/cardhall-go/internal/protocol"
)

// Defaults for the reconnection policy.
const (
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 500 * time.Millisecond
	DefaultMaxDelay     = 8 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	dialTimeout         = 10 * time.Second
)

// ErrIdentityIncomplete is returned by Connect when roomID or userID is empty.
// The manager never opens a connection without a full identity.
var ErrIdentityIncomplete = errors.New("transport: connect requires roomID and userID")

// Config tunes a Manager. Zero fields fall back to the defaults above.
type Config struct {
	URL          string // websocket endpoint, e.g. "ws://localhost:8080/rooms/ws"
	Dialer       Dialer
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	WriteTimeout time.Duration
}

// Manager maintains exactly one live connection per process and an explicit
// disconnected/connecting/connected/reconnecting state machine around it,
// independent of whatever retry behavior the underlying socket offers.
type Manager struct {
	mu sync.Mutex

	cfg Config
	log *logrus.Logger

	state  State
	conn   Conn
	roomID string
	userID string

	// gen increments whenever the current connection session ends; goroutines
	// belonging to an older generation discard their results.
	gen    int
	cancel context.CancelFunc

	subs      []func(StateChange)
	onMessage func([]byte)
}

// NewManager builds a Manager in the disconnected state. Nothing is dialed
// until Connect.
func NewManager(cfg Config, logger *logrus.Logger) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Manager{cfg: cfg, log: logger, state: StateDisconnected}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every state transition. fn is invoked outside the
// manager's lock, in transition order.
func (m *Manager) Subscribe(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// OnMessage sets the single inbound message handler.
func (m *Manager) OnMessage(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// Connect sets the identity-bearing handshake parameters and opens the
// connection if one is not already open. Calling it again with the same
// identity while a session is live (or retrying) is a no-op; a different
// identity tears the old session down first.
func (m *Manager) Connect(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return ErrIdentityIncomplete
	}

	m.mu.Lock()
	if m.state != StateDisconnected && m.roomID == roomID && m.userID == userID {
		m.mu.Unlock()
		return nil
	}
	m.teardownLocked()
	m.roomID = roomID
	m.userID = userID
	gen := m.gen
	sessionCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		cancel()
		m.transition(gen, StateDisconnected)
		return fmt.Errorf("transport: connect: %w", err)
	}

	if !m.adopt(gen, conn, sessionCtx) {
		return nil // Disconnect raced the dial; the session was abandoned
	}
	return nil
}

// Disconnect tears down the connection and all in-flight retry attempts. The
// next Connect starts an entirely fresh session with no stale goroutines
// attached.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
}

// Emit sends an intent if the connection is currently open, and silently drops
// it otherwise. Callers treat emission as best-effort notification, not
// reliable delivery.
func (m *Manager) Emit(in protocol.Intent) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateConnected
	m.mu.Unlock()

	if !open || conn == nil {
		m.log.WithField("intent", in.IntentType()).Debug("transport: dropped intent, connection not open")
		return
	}

	data, err := protocol.EncodeIntent(in)
	if err != nil {
		m.log.WithError(err).WithField("intent", in.IntentType()).Error("transport: encode intent")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		// The read loop notices the broken socket; nothing to do here.
		m.log.WithError(err).WithField("intent", in.IntentType()).Warn("transport: write failed")
	}
}

// teardownLocked ends the current session: cancels its goroutines, closes the
// socket, and bumps the generation so stale callbacks are discarded.
func (m *Manager) teardownLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return m.cfg.Dialer.Dial(dialCtx, m.handshakeURL())
}

func (m *Manager) handshakeURL() string {
	q := url.Values{}
	q.Set("roomId", m.roomID)
	q.Set("userId", m.userID)
	return m.cfg.URL + "?" + q.Encode()
}

// adopt installs a freshly dialed conn for generation gen and starts its read
// loop. Returns false when the generation has moved on.
func (m *Manager) adopt(gen int, conn Conn, sessionCtx context.Context) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return false
	}
	m.conn = conn
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.readLoop(sessionCtx, conn, gen)
	return true
}

// readLoop pumps inbound frames to the message handler until the socket dies,
// then hands over to the reconnection policy.
func (m *Manager) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				// Manual disconnect already tore this session down.
				m.mu.Unlock()
				return
			}
			m.conn = nil
			// A lost live connection is always observable as disconnected
			// before the automatic retry begins.
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()

			m.log.WithError(err).Info("transport: connection lost")
			go m.reconnectLoop(ctx, gen)
			return
		}

		m.mu.Lock()
		handler := m.onMessage
		m.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
}

// reconnectLoop retries the handshake with capped exponential backoff. It
// gives up after MaxAttempts and leaves the manager disconnected; only an
// explicit Connect restarts it after that.
func (m *Manager) reconnectLoop(ctx context.Context, gen int) {
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if !m.transition(gen, StateReconnecting) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.backoff(attempt)):
		}

		conn, err := m.dial(ctx)
		if err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     m.cfg.MaxAttempts,
			}).Warn("transport: reconnect attempt failed")
			continue
		}

		if m.adopt(gen, conn, ctx) {
			m.log.WithField("attempt", attempt).Info("transport: reconnected")
		}
		return
	}

	m.log.WithField("attempts", m.cfg.MaxAttempts).Error("transport: reconnect attempts exhausted")
	m.transition(gen, StateDisconnected)
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BaseDelay << (attempt - 1)
	if d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}

// transition moves to s if generation gen is still current. Returns false for
// stale generations.
func (m *Manager) transition(gen int, s State) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.setStateLocked(s)
	m.mu.Unlock()
	return true
}

// setStateLocked records a transition and schedules subscriber notification.
// Callers hold the lock; notification happens on a fresh goroutine-free path
// after snapshotting the subscriber list, so subscribers never run under it.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	change := StateChange{Old: m.state, New: s}
	m.state = s
	subs := make([]func(StateChange), len(m.subs))
	copy(subs, m.subs)

	m.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
	m.mu.Lock()
}
