package domain

import (
	"fmt"
	"time"

	"laneduel/internal/engine"
)

type MatchStatus string

const (
	MatchActive   MatchStatus = "active"
	MatchFinished MatchStatus = "finished"
)

// RecordedAction is one player's entry in a resolved turn.
type RecordedAction struct {
	PlayerID string        `json:"playerId"`
	Role     engine.Role   `json:"role"`
	Action   engine.Action `json:"action"`
	Fallback bool          `json:"fallback,omitempty"` // synthesized on timeout
}

// TurnRecord is one resolved turn. Actions are always in canonical
// [player1, player2] order regardless of submission order.
type TurnRecord struct {
	Turn    int               `json:"turn"`
	Actions [2]RecordedAction `json:"actions"`
}

// Match is the in-progress game bound to a room. The engine state is owned
// exclusively by the match and replaced, never mutated, on each resolution.
type Match struct {
	RoomCode    string
	PlayerIDs   map[engine.Role]string
	Seed        uint32
	State       engine.State
	Turn        int
	TurnSeconds int
	TurnStart   time.Time
	Deadline    time.Time
	Pending     map[engine.Role]*engine.Action // cleared on every resolution
	History     []TurnRecord                   // append-only
	Status      MatchStatus
	Winner      engine.Role // "" while active or on a drawn finish
}

// ReplayID is a stable identifier for a finished match, derived from room
// code and seed only.
func (m *Match) ReplayID() string {
	return fmt.Sprintf("%s-%08x", m.RoomCode, m.Seed)
}

// PendingFlags reports which roles currently have an action submitted.
func (m *Match) PendingFlags() map[engine.Role]bool {
	return map[engine.Role]bool{
		engine.RolePlayer1: m.Pending[engine.RolePlayer1] != nil,
		engine.RolePlayer2: m.Pending[engine.RolePlayer2] != nil,
	}
}
