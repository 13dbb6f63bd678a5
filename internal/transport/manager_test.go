// internal/transport/manager_test.go
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhall/cardhall-go/internal/protocol"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeConn is a scriptable Conn. Read blocks until the test injects an
// inbound frame or a failure.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	inbox  chan []byte
	fail   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox: make(chan []byte, 8),
		fail:  make(chan error, 1),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbox:
		return data, nil
	case err := <-f.fail:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// fakeDialer pops scripted results; each entry is either a conn or an error.
type fakeDialer struct {
	mu     sync.Mutex
	script []interface{}
	calls  int
}

func (f *fakeDialer) push(results ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, results...)
}

func (f *fakeDialer) Dial(context.Context, string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.script) == 0 {
		return nil, errors.New("fakeDialer: script exhausted")
	}
	next := f.script[0]
	f.script = f.script[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(Conn), nil
}

func (f *fakeDialer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stateRecorder captures the transition sequence.
type stateRecorder struct {
	mu  sync.Mutex
	seq []State
}

func (r *stateRecorder) record(ch StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = append(r.seq, ch.New)
}

func (r *stateRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.seq...)
}

func newTestManager(d Dialer) (*Manager, *stateRecorder) {
	m := NewManager(Config{
		URL:         "ws://test/rooms/ws",
		Dialer:      d,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}, testLogger())
	rec := &stateRecorder{}
	m.Subscribe(rec.record)
	return m, rec
}

func TestConnectRequiresFullIdentity(t *testing.T) {
	m, _ := newTestManager(&fakeDialer{})
	assert.ErrorIs(t, m.Connect(context.Background(), "", "u1"), ErrIdentityIncomplete)
	assert.ErrorIs(t, m.Connect(context.Background(), "r1", ""), ErrIdentityIncomplete)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnectIsIdempotentForSameIdentity(t *testing.T) {
	d := &fakeDialer{}
	d.push(newFakeConn())
	m, rec := newTestManager(d)

	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	assert.Equal(t, 1, d.callCount(), "same identity must not redial")
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.states())
}

func TestEmitDroppedWhileNotOpen(t *testing.T) {
	m, _ := newTestManager(&fakeDialer{})
	// No connection open: emission is a silent drop, not a panic or a queue.
	m.Emit(protocol.KickUser{UserID: uuid.New()})
	assert.Equal(t, StateDisconnected, m.State())
}

func TestEmitWritesFramedIntent(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m, _ := newTestManager(d)
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	m.Emit(protocol.SelectGame{GameType: "spades"})

	require.Equal(t, 1, conn.writeCount())
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(conn.writes[0], &env))
	assert.Equal(t, protocol.TypeSelectGame, env.Type)
}

func TestReconnectSequence(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{}
	d.push(conn1, errors.New("refused"), conn2)
	m, rec := newTestManager(d)
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	conn1.fail <- errors.New("connection reset")

	assert.Eventually(t, func() bool {
		return m.State() == StateConnected && d.callCount() == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []State{
		StateConnecting, StateConnected,
		StateDisconnected, StateReconnecting, StateConnected,
	}, rec.states(), "a lost connection is observable before retry begins")
}

func TestReconnectExhaustionStaysDisconnected(t *testing.T) {
	conn1 := newFakeConn()
	d := &fakeDialer{}
	d.push(conn1, errors.New("down"), errors.New("down"), errors.New("down"))
	m, rec := newTestManager(d)
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	conn1.fail <- errors.New("connection reset")

	assert.Eventually(t, func() bool {
		return d.callCount() == 4 && m.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, d.callCount(), "no automatic attempts after exhaustion")

	states := rec.states()
	assert.Equal(t, StateDisconnected, states[len(states)-1])
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	conn1 := newFakeConn()
	d := &fakeDialer{}
	d.push(conn1)
	m := NewManager(Config{
		URL:         "ws://test/rooms/ws",
		Dialer:      d,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}, testLogger())
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	conn1.fail <- errors.New("connection reset")
	assert.Eventually(t, func() bool {
		return m.State() == StateReconnecting
	}, time.Second, time.Millisecond)

	m.Disconnect()

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, d.callCount(), "explicit disconnect cancels the retry")
	assert.Equal(t, StateDisconnected, m.State())
}

func TestInboundMessagesReachHandler(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m, _ := newTestManager(d)

	var mu sync.Mutex
	var got [][]byte
	m.OnMessage(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, data)
	})
	require.NoError(t, m.Connect(context.Background(), "r1", "u1"))

	conn.inbox <- []byte(`{"type":"game.resumed"}`)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
}
