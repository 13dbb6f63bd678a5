// internal/session/events.go
package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cardhall/cardhall-go/internal/protocol"
)

// handleRaw is the transport's message handler. Malformed or unknown events
// are logged and dropped; nothing thrown here may escape, since that would
// desynchronize the transport's read loop from the rest of the process.
func (c *Controller) handleRaw(data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		c.log.WithError(err).Warn("session: dropping undecodable event")
		return
	}

	switch ev := ev.(type) {
	case protocol.RoomEvent:
		c.applyRoomEvent(ev)
	case protocol.GameEvent:
		c.applyGameEvent(ev)
	default:
		c.log.WithField("type", ev.EventType()).Warn("session: dropping unhandled event family")
	}
}

func (c *Controller) applyRoomEvent(ev protocol.RoomEvent) {
	switch ev := ev.(type) {
	case *protocol.RoomSync:
		c.mu.Lock()
		room := ev.Room
		c.room = &room
		c.mu.Unlock()
		c.render()

	case *protocol.RoomUserJoined:
		c.notify(Notice{Kind: "user_joined", Message: fmt.Sprintf("%s joined the room", ev.UserName)})

	case *protocol.RoomUserLeft:
		msg := fmt.Sprintf("%s left the room", ev.UserName)
		if !ev.Voluntary {
			msg = fmt.Sprintf("%s dropped from the room", ev.UserName)
		}
		c.notify(Notice{Kind: "user_left", Message: msg})

	case *protocol.RoomLeaderPromoted:
		c.mu.Lock()
		if c.room != nil {
			c.room.LeaderID = ev.NewLeaderID
		}
		if c.game != nil {
			c.game.LeaderID = ev.NewLeaderID
		}
		c.mu.Unlock()
		c.notify(Notice{Kind: "leader_promoted", Message: fmt.Sprintf("%s is now the room leader", ev.NewLeaderName)})
		c.render()

	case *protocol.RoomGameStarted:
		c.mu.Lock()
		game := ev.Game
		c.game = &game
		c.overlay = nil
		c.recomputeDisconnectedLocked()
		c.phase = PhaseActive
		c.mu.Unlock()
		c.notify(Notice{Kind: "game_started", Message: fmt.Sprintf("a game of %s started", ev.GameType)})
		c.render()

	case *protocol.RoomUserKicked:
		c.applyKick(ev)
	}
}

func (c *Controller) applyGameEvent(ev protocol.GameEvent) {
	switch ev := ev.(type) {
	case *protocol.GameSync:
		c.applyGameSync(ev)

	case *protocol.GamePlayerSync:
		c.mu.Lock()
		view := ev.View
		c.view = &view
		// The fresh private view supersedes any predicted hand; the shared
		// overlay still waits for the next full snapshot.
		if c.overlay != nil {
			c.overlay.Player = nil
		}
		c.mu.Unlock()
		c.render()

	case *protocol.GamePaused:
		c.mu.Lock()
		if c.phase != PhaseTerminated {
			c.phase = PhasePaused
		}
		c.pause = Pause{Active: true, Reason: ev.Reason, TimeoutAt: ev.TimeoutAt}
		c.mu.Unlock()
		c.notify(Notice{Kind: "game_paused", Message: fmt.Sprintf("game paused: %s", ev.Reason)})
		c.render()

	case *protocol.GameResumed:
		c.mu.Lock()
		if c.phase != PhaseTerminated {
			c.phase = PhaseActive
		}
		c.pause = Pause{}
		c.disconnected = make(map[uuid.UUID]struct{})
		c.mu.Unlock()
		c.notify(Notice{Kind: "game_resumed", Message: "game resumed"})
		c.render()

	case *protocol.GameAborted:
		c.mu.Lock()
		c.phase = PhaseTerminated
		c.pause = Pause{}
		c.overlay = nil
		c.mu.Unlock()
		c.notify(Notice{Kind: "game_aborted", Message: fmt.Sprintf("game aborted: %s", ev.Reason)})
		c.render()

	case *protocol.GameUserDisconnected:
		c.mu.Lock()
		c.disconnected[ev.UserID] = struct{}{}
		c.mu.Unlock()
		c.notify(Notice{Kind: "user_disconnected", Message: fmt.Sprintf("%s disconnected", ev.UserName)})
		c.render()

	case *protocol.GameUserReconnected:
		c.mu.Lock()
		delete(c.disconnected, ev.UserID)
		c.mu.Unlock()
		c.notify(Notice{Kind: "user_reconnected", Message: fmt.Sprintf("%s reconnected", ev.UserName)})
		c.render()
	}
}

// applyGameSync replaces the authoritative snapshot wholesale. Any pending
// prediction is discarded unconditionally, even when it matched, and the
// disconnected set is recomputed from the roster so event-derived patches
// never outlive the snapshot.
func (c *Controller) applyGameSync(ev *protocol.GameSync) {
	c.mu.Lock()
	game := ev.Game
	c.game = &game
	c.overlay = nil
	c.recomputeDisconnectedLocked()
	if c.phase != PhaseTerminated {
		if game.Paused {
			c.phase = PhasePaused
			if !c.pause.Active {
				c.pause = Pause{Active: true, Reason: game.PauseReason, TimeoutAt: game.TimeoutAt}
			}
		} else {
			c.phase = PhaseActive
			c.pause = Pause{}
		}
	}
	c.mu.Unlock()
	c.render()
}

// applyKick distinguishes a kick aimed at the local identity, which
// invalidates the stored user and cancels any in-progress reconnect, from an
// informational kick of another participant.
func (c *Controller) applyKick(ev *protocol.RoomUserKicked) {
	self := c.ids.Read().UserID == ev.UserID.String()
	if !self {
		c.notify(Notice{Kind: "user_kicked", Message: fmt.Sprintf("%s was removed from the room", ev.UserName)})
		return
	}

	c.log.Info("session: local user was kicked, invalidating identity")
	// Identity invalidation takes priority over reconnection: tear the
	// transport down first so no retry re-joins with a dead identity.
	c.tr.Disconnect()
	c.ids.ClearUser()

	c.mu.Lock()
	c.phase = PhaseTerminated
	c.overlay = nil
	fn := c.onEvicted
	c.mu.Unlock()

	c.notify(Notice{Kind: "user_kicked", Message: "you were removed from the room"})
	if fn != nil {
		fn("kicked")
	}
}

// recomputeDisconnectedLocked derives the disconnected set from the roster's
// connectivity flags. Caller holds the lock.
func (c *Controller) recomputeDisconnectedLocked() {
	c.disconnected = make(map[uuid.UUID]struct{})
	if c.game == nil {
		return
	}
	for _, p := range c.game.Players {
		if !p.Connected {
			c.disconnected[p.ID] = struct{}{}
		}
	}
}
