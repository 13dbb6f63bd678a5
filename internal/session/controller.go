// internal/session/controller.go

// Package session arbitrates between authoritative server state and local
// prediction. The Controller consumes protocol events, owns the lifecycle
// phase machine, and exposes exactly one rendered state to the presentation
// layer; it performs no game logic of its own.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cardhall/cardhall-go/internal/identity"
	"github.com/cardhall/cardhall-go/internal/models"
	"github.com/cardhall/cardhall-go/internal/predict"
	"github.com/cardhall/cardhall-go/internal/protocol"
	"github.com/cardhall/cardhall-go/internal/rules"
	"github.com/cardhall/cardhall-go/internal/transport"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	// PhaseAwaitingSync means no authoritative snapshot has arrived yet.
	PhaseAwaitingSync Phase = "awaiting-sync"
	// PhaseActive means the game is live and the snapshot is current.
	PhaseActive Phase = "active"
	// PhasePaused means the server paused the game, usually on a disconnect.
	PhasePaused Phase = "paused"
	// PhaseTerminated is terminal: the game aborted or the local user was removed.
	PhaseTerminated Phase = "terminated"
)

// Notice is a user-visible, non-structural event for the presentation layer.
type Notice struct {
	Kind    string
	Message string
}

// Pause is the pause/abort lifecycle state. TimeoutAt is the absolute deadline
// after which the server is expected to auto-abort.
type Pause struct {
	Active    bool
	Reason    string
	TimeoutAt *time.Time
}

// Expired reports whether the abort deadline has passed. This layer only
// exposes the fact; issuing the abort is the server's job.
func (p Pause) Expired(now time.Time) bool {
	return p.Active && p.TimeoutAt != nil && !now.Before(*p.TimeoutAt)
}

// Transport is the slice of the connection manager the controller needs.
// *transport.Manager satisfies it; tests inject a fake.
type Transport interface {
	Connect(ctx context.Context, roomID, userID string) error
	Disconnect()
	Emit(in protocol.Intent)
	Subscribe(fn func(transport.StateChange))
	OnMessage(fn func([]byte))
	State() transport.State
}

// Controller is the synchronization controller.
type Controller struct {
	mu sync.Mutex

	log    *logrus.Logger
	tr     Transport
	ids    *identity.Store
	engine *predict.Engine

	phase        Phase
	room         *models.RoomSnapshot
	game         *models.GameSnapshot
	view         *models.PlayerView
	overlay      *predict.Overlay
	disconnected map[uuid.UUID]struct{}
	pause        Pause

	onNotice  func(Notice)
	onRender  func()
	onEvicted func(reason string)
}

// NewController wires the controller into the transport's state and message
// streams.
func NewController(tr Transport, ids *identity.Store, engine *predict.Engine, logger *logrus.Logger) *Controller {
	c := &Controller{
		log:          logger,
		tr:           tr,
		ids:          ids,
		engine:       engine,
		phase:        PhaseAwaitingSync,
		disconnected: make(map[uuid.UUID]struct{}),
	}
	tr.OnMessage(c.handleRaw)
	tr.Subscribe(c.handleConnChange)
	return c
}

// OnNotice registers the user-visible notice sink.
func (c *Controller) OnNotice(fn func(Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotice = fn
}

// OnRender registers the callback fired whenever rendered state changed.
func (c *Controller) OnRender(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRender = fn
}

// OnEvicted registers the callback fired when the local user is kicked and the
// presentation layer must navigate away.
func (c *Controller) OnEvicted(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvicted = fn
}

// Connect opens the transport using the stored identity.
func (c *Controller) Connect(ctx context.Context) error {
	id := c.ids.Read()
	return c.tr.Connect(ctx, id.RoomID, id.UserID)
}

// Leave is a voluntary departure: drop the connection, forget the room, keep
// the user identity for rejoining elsewhere.
func (c *Controller) Leave() {
	c.tr.Disconnect()
	c.ids.ClearRoom()
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ConnectionState mirrors the transport's state for rendering.
func (c *Controller) ConnectionState() transport.State {
	return c.tr.State()
}

// PauseState returns the current pause lifecycle state.
func (c *Controller) PauseState() Pause {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause
}

// GameState returns the rendered shared state: the last authoritative snapshot
// with any pending prediction overlay applied. ok is false before the first
// full sync.
func (c *Controller) GameState() (models.GameSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.game == nil {
		return models.GameSnapshot{}, false
	}
	return c.overlay.ApplyGame(*c.game), true
}

// PlayerState returns the rendered private state with any pending prediction
// overlay applied.
func (c *Controller) PlayerState() (models.PlayerView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return models.PlayerView{}, false
	}
	return c.overlay.ApplyView(*c.view), true
}

// RoomState returns the last lobby snapshot.
func (c *Controller) RoomState() (models.RoomSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return models.RoomSnapshot{}, false
	}
	return *c.room, true
}

// Disconnected returns a copy of the disconnected-player set.
func (c *Controller) Disconnected() map[uuid.UUID]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uuid.UUID]struct{}, len(c.disconnected))
	for id := range c.disconnected {
		out[id] = struct{}{}
	}
	return out
}

// LegalPlays returns the hand indices currently legal to play, for disabling
// illegal affordances in the interface.
func (c *Controller) LegalPlays() map[int]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.game == nil || c.view == nil {
		return map[int]struct{}{}
	}
	game := c.overlay.ApplyGame(*c.game)
	view := c.overlay.ApplyView(*c.view)
	return rules.LegalPlays(view.Hand, &game)
}

// SubmitAction gates a local action through the legality validator, applies
// the optimistic prediction, and emits the intent. The predicted state is
// visible to the caller before the network round trip; the return value tells
// the interface whether the action was accepted locally.
func (c *Controller) SubmitAction(action models.Action) bool {
	c.mu.Lock()
	if c.phase != PhaseActive || c.game == nil || c.view == nil {
		c.mu.Unlock()
		return false
	}
	overlay, ok := c.engine.Predict(c.game, c.view, action)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.overlay = overlay
	c.mu.Unlock()

	c.tr.Emit(protocol.SubmitAction{Action: action})
	c.render()
	return true
}

// SelectGame asks the server to switch the room's game type.
func (c *Controller) SelectGame(gameType string) {
	c.tr.Emit(protocol.SelectGame{GameType: gameType})
}

// UpdateSettings pushes partial settings to the server.
func (c *Controller) UpdateSettings(settings map[string]interface{}) {
	c.tr.Emit(protocol.UpdateSettings{Settings: settings})
}

// KickUser asks the server to remove a participant.
func (c *Controller) KickUser(userID uuid.UUID) {
	c.tr.Emit(protocol.KickUser{UserID: userID})
}

// handleConnChange reacts to transport state transitions. A fresh connection
// never re-pushes state implicitly, so on every transition into connected the
// controller pulls a full snapshot and a fresh private view.
func (c *Controller) handleConnChange(ch transport.StateChange) {
	if ch.New != transport.StateConnected {
		c.render()
		return
	}

	id := c.ids.Read()
	roomID, err1 := uuid.Parse(id.RoomID)
	userID, err2 := uuid.Parse(id.UserID)
	if err1 != nil || err2 != nil {
		c.log.Warn("session: connected with unusable identity, skipping state pull")
		return
	}

	c.log.Info("session: connected, pulling fresh state")
	c.tr.Emit(protocol.RequestRoomState{RoomID: roomID, UserID: userID})
	c.tr.Emit(protocol.RequestGameState{RoomID: roomID, UserID: userID})
	c.tr.Emit(protocol.RequestPlayerState{RoomID: roomID, UserID: userID})
	c.render()
}

func (c *Controller) render() {
	c.mu.Lock()
	fn := c.onRender
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Controller) notify(n Notice) {
	c.mu.Lock()
	fn := c.onNotice
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}
