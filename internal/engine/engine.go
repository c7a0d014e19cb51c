package engine

// Движок правил дуэли. Чистые функции: состояние заменяется, не мутируется.
// The coordinator owns when turns resolve; this package only answers what is
// legal and what the next state is.

type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

// Opponent returns the other role.
func Opponent(r Role) Role {
	if r == RolePlayer1 {
		return RolePlayer2
	}
	return RolePlayer1
}

type ActionType string

const (
	ActionTake       ActionType = "take"
	ActionBurn       ActionType = "burn"
	ActionStand      ActionType = "stand"
	ActionForcedDraw ActionType = "forced_draw"
	ActionPass       ActionType = "pass"
	ActionBid        ActionType = "bid"
)

// Action is a single player decision for one turn.
type Action struct {
	Type ActionType `json:"type"`
	Lane int        `json:"lane"`
	Bid  int        `json:"bid,omitempty"`
}

// PlayerAction pairs a role with the action it plays this turn.
type PlayerAction struct {
	Role   Role   `json:"role"`
	Action Action `json:"action"`
}

// TurnActions holds both actions in canonical [player1, player2] order.
type TurnActions [2]PlayerAction

const (
	NumLanes  = 3
	FinalTurn = 12

	standBonus   = 2
	shackleBonus = 3
	maxBid       = 5
)

// AuctionTurns are the fixed turn numbers on which bids replace ordinary
// actions.
var AuctionTurns = []int{4, 8}

// IsAuctionTurn reports whether the given turn number is an auction turn.
func IsAuctionTurn(turn int) bool {
	for _, t := range AuctionTurns {
		if t == turn {
			return true
		}
	}
	return false
}

// Engine is the rules interface the match coordinator consumes.
type Engine interface {
	CreateInitialState(seed uint32) State
	GetLegalActions(s State, r Role) []Action
	IsActionLegal(s State, r Role, a Action) bool
	ResolveTurn(s State, actions TurnActions) State
}

// LaneEngine is the concrete lane-duel rules implementation.
type LaneEngine struct{}

func New() *LaneEngine {
	return &LaneEngine{}
}

// GetLegalActions returns the legal actions for role r in canonical order:
// take by lane ascending, burn, stand by lane ascending, forced-draw by lane
// ascending, pass. On auction turns the list is bids only, ordered by lane
// ascending then amount ascending. Pass is always present last on ordinary
// turns, so the list is never empty.
func (e *LaneEngine) GetLegalActions(s State, r Role) []Action {
	if s.GameOver {
		return nil
	}

	side := s.side(r)

	if IsAuctionTurn(s.Turn) {
		limit := side.Score
		if limit > maxBid {
			limit = maxBid
		}
		if limit < 0 {
			limit = 0
		}
		var out []Action
		for lane := 0; lane < NumLanes; lane++ {
			for amount := 0; amount <= limit; amount++ {
				out = append(out, Action{Type: ActionBid, Lane: lane, Bid: amount})
			}
		}
		return out
	}

	var out []Action
	for lane := 0; lane < NumLanes; lane++ {
		if s.Lanes[lane] != 0 {
			out = append(out, Action{Type: ActionTake, Lane: lane})
		}
	}
	if side.Taken > 0 {
		out = append(out, Action{Type: ActionBurn})
	}
	for lane := 0; lane < NumLanes; lane++ {
		if !side.Standing[lane] {
			out = append(out, Action{Type: ActionStand, Lane: lane})
		}
	}
	for lane := 0; lane < NumLanes; lane++ {
		if s.Lanes[lane] == 0 && s.DeckPos < len(s.Deck) {
			out = append(out, Action{Type: ActionForcedDraw, Lane: lane})
		}
	}
	out = append(out, Action{Type: ActionPass})
	return out
}

// IsActionLegal reports whether a is legal for r in state s.
func (e *LaneEngine) IsActionLegal(s State, r Role, a Action) bool {
	for _, legal := range e.GetLegalActions(s, r) {
		if legal == a {
			return true
		}
	}
	return false
}

// ScriptedAction picks the move a scripted opponent would play: the first
// entry of the canonical legal-action list. The timeout fallback policy in
// the coordinator follows the same ordering for ordinary turns.
func (e *LaneEngine) ScriptedAction(s State, r Role) Action {
	legal := e.GetLegalActions(s, r)
	if len(legal) == 0 {
		return Action{Type: ActionPass}
	}
	return legal[0]
}
