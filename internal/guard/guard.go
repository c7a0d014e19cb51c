// Package guard holds the pure structural invariant checks used by every
// mutating match operation. A failed check is a programming defect, not a
// user error: it panics with full context so the operation dies loudly
// instead of desynchronizing the two clients. The session gateway recovers,
// logs and reports internal-error for the offending operation.
package guard

import (
	"fmt"

	"laneduel/internal/engine"
)

// InvariantViolation is the panic payload for a failed guard.
type InvariantViolation struct {
	Name    string
	Context string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s (%s)", v.Name, v.Context)
}

func fail(name, format string, args ...any) {
	panic(&InvariantViolation{Name: name, Context: fmt.Sprintf(format, args...)})
}

// HistoryLength asserts history.length == turnNumber-1, checked after every
// mutation of a match.
func HistoryLength(roomCode string, historyLen, turnNumber int) {
	if historyLen != turnNumber-1 {
		fail("history-length", "room=%s history=%d turn=%d", roomCode, historyLen, turnNumber)
	}
}

// CanonicalOrder asserts the assembled turn actions are in [player1, player2]
// order, independent of submission order.
func CanonicalOrder(roomCode string, actions engine.TurnActions) {
	if actions[0].Role != engine.RolePlayer1 || actions[1].Role != engine.RolePlayer2 {
		fail("canonical-order", "room=%s got=[%s,%s]", roomCode, actions[0].Role, actions[1].Role)
	}
}

// NotGameOver asserts a resolution is never attempted on a finished game
// state.
func NotGameOver(roomCode string, gameOver bool) {
	if gameOver {
		fail("resolve-after-game-over", "room=%s", roomCode)
	}
}

// TurnAgreement asserts the match turn counter and the engine state agree.
func TurnAgreement(roomCode string, matchTurn, stateTurn int) {
	if matchTurn != stateTurn {
		fail("turn-agreement", "room=%s match=%d state=%d", roomCode, matchTurn, stateTurn)
	}
}
