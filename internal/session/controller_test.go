// internal/session/controller_test.go
package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhall/cardhall-go/internal/identity"
	"github.com/cardhall/cardhall-go/internal/models"
	"github.com/cardhall/cardhall-go/internal/predict"
	"github.com/cardhall/cardhall-go/internal/protocol"
	"github.com/cardhall/cardhall-go/internal/transport"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeTransport satisfies Transport and records everything.
type fakeTransport struct {
	mu              sync.Mutex
	state           transport.State
	emitted         []protocol.Intent
	subs            []func(transport.StateChange)
	onMessage       func([]byte)
	connectCalls    int
	disconnectCalls int
}

func (f *fakeTransport) Connect(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.state = transport.StateDisconnected
}

func (f *fakeTransport) Emit(in protocol.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, in)
}

func (f *fakeTransport) Subscribe(fn func(transport.StateChange)) {
	f.subs = append(f.subs, fn)
}

func (f *fakeTransport) OnMessage(fn func([]byte)) { f.onMessage = fn }

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// setState simulates a transport transition, notifying subscribers like the
// real manager does.
func (f *fakeTransport) setState(s transport.State) {
	f.mu.Lock()
	change := transport.StateChange{Old: f.state, New: s}
	f.state = s
	subs := f.subs
	f.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

func (f *fakeTransport) intents() []protocol.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Intent(nil), f.emitted...)
}

func (f *fakeTransport) countIntents(typ string) int {
	n := 0
	for _, in := range f.intents() {
		if in.IntentType() == typ {
			n++
		}
	}
	return n
}

// frame encodes an event the way the server would.
func frame(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(protocol.Envelope{Type: eventType, Payload: raw})
	require.NoError(t, err)
	return data
}

type harness struct {
	ctrl *Controller
	tr   *fakeTransport
	ids  *identity.Store
	me   uuid.UUID
	peer uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr := &fakeTransport{state: transport.StateConnected}
	ids := identity.NewStore(identity.NewMemoryStorage(), identity.NewMemoryStorage(), testLogger())

	me, peer := uuid.New(), uuid.New()
	ids.Write(identity.Identity{RoomID: uuid.NewString(), UserID: me.String(), UserName: "dana"})

	ctrl := NewController(tr, ids, predict.NewEngine(testLogger()), testLogger())
	require.NotNil(t, tr.onMessage, "controller must wire itself into the message stream")
	return &harness{ctrl: ctrl, tr: tr, ids: ids, me: me, peer: peer}
}

func (h *harness) deliver(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	h.tr.onMessage(frame(t, eventType, payload))
}

func (h *harness) snapshot() models.GameSnapshot {
	return models.GameSnapshot{
		GameID:          uuid.New(),
		GameType:        "spades",
		Phase:           models.PhasePlaying,
		CurrentPlayerID: h.me,
		Players: []models.PlayerInfo{
			{ID: h.me, Name: "dana", Connected: true, HandSize: 2},
			{ID: h.peer, Name: "rory", Connected: true, HandSize: 2},
		},
	}
}

func (h *harness) syncGame(t *testing.T, s models.GameSnapshot) {
	h.deliver(t, protocol.TypeGameSync, protocol.GameSync{Game: s})
}

func (h *harness) syncView(t *testing.T, hand ...models.Card) {
	h.deliver(t, protocol.TypeGamePlayerSync, protocol.GamePlayerSync{
		View: models.PlayerView{UserID: h.me, Hand: hand},
	})
}

func TestSnapshotReplacesWholesale(t *testing.T) {
	h := newHarness(t)

	s1 := h.snapshot()
	s1.Round = 1
	s1.TrumpBroken = true
	h.syncGame(t, s1)

	s2 := h.snapshot()
	s2.Round = 2
	h.syncGame(t, s2)

	got, ok := h.ctrl.GameState()
	require.True(t, ok)
	assert.Equal(t, s2, got, "each sync replaces the snapshot exactly, never merges")
	assert.Equal(t, PhaseActive, h.ctrl.Phase())
}

func TestPredictionNeverOutlivesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())
	played := models.Card{Rank: "9", Suit: models.SuitClubs}
	h.syncView(t, played, models.Card{Rank: "2", Suit: models.SuitHearts})

	ok := h.ctrl.SubmitAction(models.Action{Type: models.ActionPlayCard, Card: &played})
	require.True(t, ok)

	predicted, _ := h.ctrl.GameState()
	require.Len(t, predicted.Trick, 1, "prediction must be visible before the round trip")

	// The authoritative echo disagrees: the server kept the trick empty.
	correction := h.snapshot()
	correction.Round = 7
	h.syncGame(t, correction)

	got, ok := h.ctrl.GameState()
	require.True(t, ok)
	assert.Equal(t, correction, got, "authoritative state always wins over prediction")
	assert.Empty(t, got.Trick)
}

func TestSubmitActionGatesAndEmits(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())
	heart := models.Card{Rank: "2", Suit: models.SuitHearts}
	h.syncView(t, heart)

	notHeld := models.Card{Rank: "A", Suit: models.SuitDiamonds}
	assert.False(t, h.ctrl.SubmitAction(models.Action{Type: models.ActionPlayCard, Card: &notHeld}))
	assert.Zero(t, h.tr.countIntents(protocol.TypeSubmitAction), "illegal actions are never emitted")

	assert.True(t, h.ctrl.SubmitAction(models.Action{Type: models.ActionPlayCard, Card: &heart}))
	assert.Equal(t, 1, h.tr.countIntents(protocol.TypeSubmitAction))

	view, ok := h.ctrl.PlayerState()
	require.True(t, ok)
	assert.Empty(t, view.Hand, "the predicted hand drops the played card")
}

func TestDisconnectedSetFromSnapshot(t *testing.T) {
	h := newHarness(t)
	s := h.snapshot()
	s.Players[0].Connected = false // the local player is the one marked offline
	h.syncGame(t, s)

	got := h.ctrl.Disconnected()
	require.Len(t, got, 1)
	assert.Contains(t, got, h.me)
}

func TestDisconnectedSetPatchesNeverOutliveSnapshot(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())
	require.Empty(t, h.ctrl.Disconnected())

	h.deliver(t, protocol.TypeGameUserDisconnected, protocol.GameUserDisconnected{UserID: h.peer, UserName: "rory"})
	assert.Contains(t, h.ctrl.Disconnected(), h.peer)

	h.deliver(t, protocol.TypeGameUserReconnected, protocol.GameUserReconnected{UserID: h.peer, UserName: "rory"})
	assert.Empty(t, h.ctrl.Disconnected())

	h.deliver(t, protocol.TypeGameUserDisconnected, protocol.GameUserDisconnected{UserID: h.peer, UserName: "rory"})
	h.syncGame(t, h.snapshot()) // everyone connected again
	assert.Empty(t, h.ctrl.Disconnected(), "full sync recomputes the set from scratch")
}

func TestPauseLifecycle(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())

	now := time.Now()
	deadline := now.Add(10 * time.Second)
	h.deliver(t, protocol.TypeGamePaused, protocol.GamePaused{Reason: "player disconnected", TimeoutAt: &deadline})

	require.Equal(t, PhasePaused, h.ctrl.Phase())
	p := h.ctrl.PauseState()
	assert.False(t, p.Expired(now.Add(9*time.Second)))
	assert.True(t, p.Expired(now.Add(11*time.Second)), "deadline reads as expired after 11 simulated seconds")

	h.deliver(t, protocol.TypeGameResumed, protocol.GameResumed{})
	assert.Equal(t, PhaseActive, h.ctrl.Phase())
	assert.False(t, h.ctrl.PauseState().Active)
	assert.Empty(t, h.ctrl.Disconnected(), "resume clears the disconnected set")
}

func TestAbortIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())

	h.deliver(t, protocol.TypeGameAborted, protocol.GameAborted{Reason: "pause timed out"})
	assert.Equal(t, PhaseTerminated, h.ctrl.Phase())

	h.syncGame(t, h.snapshot())
	assert.Equal(t, PhaseTerminated, h.ctrl.Phase(), "a late snapshot does not resurrect a terminated session")
}

func TestReconnectPullsFreshState(t *testing.T) {
	h := newHarness(t)

	h.tr.setState(transport.StateDisconnected)
	h.tr.setState(transport.StateReconnecting)
	h.tr.setState(transport.StateConnected)

	assert.Equal(t, 1, h.tr.countIntents(protocol.TypeRequestGameState), "exactly one game-state pull per connect")
	assert.Equal(t, 1, h.tr.countIntents(protocol.TypeRequestPlayerState), "exactly one player-state pull per connect")
}

func TestSelfKickInvalidatesIdentity(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())

	evicted := make(chan string, 1)
	h.ctrl.OnEvicted(func(reason string) { evicted <- reason })

	h.deliver(t, protocol.TypeRoomUserKicked, protocol.RoomUserKicked{UserID: h.me, UserName: "dana"})

	assert.Equal(t, 1, h.tr.disconnectCalls, "kick cancels any in-progress reconnection")
	got := h.ids.Read()
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.RoomID)
	assert.Equal(t, "dana", got.UserName)
	assert.Equal(t, PhaseTerminated, h.ctrl.Phase())

	select {
	case reason := <-evicted:
		assert.Equal(t, "kicked", reason)
	default:
		t.Fatal("expected the eviction callback to fire")
	}
}

func TestKickOfOtherParticipantIsInformational(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())

	var notices []Notice
	h.ctrl.OnNotice(func(n Notice) { notices = append(notices, n) })

	h.deliver(t, protocol.TypeRoomUserKicked, protocol.RoomUserKicked{UserID: h.peer, UserName: "rory"})

	assert.Zero(t, h.tr.disconnectCalls)
	assert.NotEmpty(t, h.ids.Read().UserID, "identity untouched for a kick aimed elsewhere")
	require.Len(t, notices, 1)
	assert.Equal(t, "user_kicked", notices[0].Kind)
	assert.Equal(t, PhaseActive, h.ctrl.Phase())
}

func TestMalformedEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())
	before, _ := h.ctrl.GameState()

	h.tr.onMessage([]byte(`not json at all`))
	h.tr.onMessage([]byte(`{"type":"game.totally_new_thing","payload":{}}`))
	h.tr.onMessage([]byte(`{"payload":{}}`))
	h.tr.onMessage(frame(t, protocol.TypeGameSync, json.RawMessage(`{"game": 42}`)))

	after, ok := h.ctrl.GameState()
	require.True(t, ok)
	assert.Equal(t, before, after, "bad events never reach state")
	assert.Equal(t, PhaseActive, h.ctrl.Phase())
}

func TestLeaderPromotion(t *testing.T) {
	h := newHarness(t)
	h.syncGame(t, h.snapshot())

	h.deliver(t, protocol.TypeRoomLeaderPromoted, protocol.RoomLeaderPromoted{NewLeaderID: h.peer, NewLeaderName: "rory"})

	got, _ := h.ctrl.GameState()
	assert.Equal(t, h.peer, got.LeaderID)
	assert.Equal(t, PhaseActive, h.ctrl.Phase(), "promotion does not change phase")
}

func TestLeaveClearsRoomOnly(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Leave()

	assert.Equal(t, 1, h.tr.disconnectCalls)
	got := h.ids.Read()
	assert.Empty(t, got.RoomID)
	assert.NotEmpty(t, got.UserID)
}
