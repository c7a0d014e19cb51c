package domain

import (
	"strings"
	"time"

	"laneduel/internal/engine"
)

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomReady    RoomStatus = "ready"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

const (
	// Пустая комната живет 5 минут; после входа второго игрока срок
	// снимается навсегда.
	RoomExpiry = 5 * time.Minute

	MaxDisplayNameLen  = 24
	DefaultDisplayName = "Player"

	DefaultTurnSeconds = 30
	MinTurnSeconds     = 15
	MaxTurnSeconds     = 60
)

// Player is a room-scoped participant.
type Player struct {
	ID        string
	Name      string
	Role      engine.Role
	Connected bool
	Ready     bool
	ConnID    string // empty while disconnected
}

// Room pairs up to two players under a shared code, before and after a
// match. Slot 0 is always populated; slot 1 is nil until someone joins.
type Room struct {
	Code        string
	Status      RoomStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time // zero once both slots are populated
	TurnSeconds int
	Players     [2]*Player
}

// PlayerByID returns the player with the given id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p != nil && p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByRole returns the player seated in the given role, or nil.
func (r *Room) PlayerByRole(role engine.Role) *Player {
	for _, p := range r.Players {
		if p != nil && p.Role == role {
			return p
		}
	}
	return nil
}

// Full reports whether both slots are populated.
func (r *Room) Full() bool {
	return r.Players[0] != nil && r.Players[1] != nil
}

// BothReady reports whether both players marked themselves ready.
func (r *Room) BothReady() bool {
	return r.Full() && r.Players[0].Ready && r.Players[1].Ready
}

// SanitizeDisplayName trims, caps the length and substitutes a placeholder
// for empty names.
func SanitizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	if len(name) > MaxDisplayNameLen {
		name = name[:MaxDisplayNameLen]
	}
	return name
}

// ClampTurnSeconds forces the configured turn timer into the valid range,
// substituting the default when unset.
func ClampTurnSeconds(seconds int) int {
	if seconds == 0 {
		return DefaultTurnSeconds
	}
	if seconds < MinTurnSeconds {
		return MinTurnSeconds
	}
	if seconds > MaxTurnSeconds {
		return MaxTurnSeconds
	}
	return seconds
}
