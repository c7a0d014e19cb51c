package engine

import "math/rand"

// PlayerSide is the per-role half of the game state.
type PlayerSide struct {
	Score    int            `json:"score"`
	Taken    int            `json:"taken"`
	Standing [NumLanes]bool `json:"standing"`
	Shackled [NumLanes]bool `json:"shackled"`
}

// State is the full game state. Value semantics: ResolveTurn returns a new
// State and never writes through the receiver. Deck is filled once at
// creation and only read afterwards, so copies may share it.
type State struct {
	Seed     uint32         `json:"seed"`
	Turn     int            `json:"turn"`
	Deck     []int          `json:"deck"`
	DeckPos  int            `json:"deckPos"`
	Lanes    [NumLanes]int  `json:"lanes"`
	P1       PlayerSide     `json:"player1"`
	P2       PlayerSide     `json:"player2"`
	GameOver bool           `json:"gameOver"`
	Winner   Role           `json:"winner,omitempty"`
}

func (s *State) side(r Role) *PlayerSide {
	if r == RolePlayer1 {
		return &s.P1
	}
	return &s.P2
}

// Side returns a copy of the given role's half of the state.
func (s State) Side(r Role) PlayerSide {
	return *s.side(r)
}

// CreateInitialState builds the turn-1 state: a seeded shuffled deck of 36
// cards (values 1..9, four of each) with one card dealt face-up per lane.
// The same seed always yields the same deal.
func (e *LaneEngine) CreateInitialState(seed uint32) State {
	deck := make([]int, 0, 36)
	for v := 1; v <= 9; v++ {
		for i := 0; i < 4; i++ {
			deck = append(deck, v)
		}
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	s := State{
		Seed: seed,
		Turn: 1,
		Deck: deck,
	}
	for lane := 0; lane < NumLanes; lane++ {
		s.Lanes[lane] = s.Deck[s.DeckPos]
		s.DeckPos++
	}
	return s
}

// ResolveTurn applies both actions simultaneously and returns the next
// state. The caller has already validated both actions against
// IsActionLegal for the current state; actions must arrive in canonical
// [player1, player2] order.
func (e *LaneEngine) ResolveTurn(s State, actions TurnActions) State {
	next := s

	if IsAuctionTurn(next.Turn) {
		resolveAuction(&next, actions)
	} else {
		resolveOrdinary(&next, actions)
	}

	next.Turn++
	if next.Turn > FinalTurn || (next.DeckPos >= len(next.Deck) && next.Lanes == [NumLanes]int{}) {
		finish(&next)
	}
	return next
}

func resolveOrdinary(s *State, actions TurnActions) {
	a1, a2 := actions[0].Action, actions[1].Action

	// Contested take: both grab the same lane, the card is lost to both.
	if a1.Type == ActionTake && a2.Type == ActionTake && a1.Lane == a2.Lane {
		s.Lanes[a1.Lane] = 0
	} else {
		applyOne(s, actions[0].Role, a1)
		applyOne(s, actions[1].Role, a2)
	}

	// Refill emptied lanes from the deck.
	for lane := 0; lane < NumLanes; lane++ {
		if s.Lanes[lane] == 0 && s.DeckPos < len(s.Deck) {
			s.Lanes[lane] = s.Deck[s.DeckPos]
			s.DeckPos++
		}
	}
}

func applyOne(s *State, r Role, a Action) {
	side := s.side(r)
	switch a.Type {
	case ActionTake:
		if card := s.Lanes[a.Lane]; card != 0 {
			side.Score += card
			side.Taken++
			s.Lanes[a.Lane] = 0
		}
	case ActionBurn:
		// Discards the highest face-up card, denying it to both players.
		best, bestLane := 0, -1
		for lane := 0; lane < NumLanes; lane++ {
			if s.Lanes[lane] > best {
				best, bestLane = s.Lanes[lane], lane
			}
		}
		if bestLane >= 0 {
			s.Lanes[bestLane] = 0
			side.Taken--
		}
	case ActionStand:
		side.Standing[a.Lane] = true
	case ActionForcedDraw:
		if a.Lane >= 0 && a.Lane < NumLanes && s.Lanes[a.Lane] == 0 && s.DeckPos < len(s.Deck) {
			s.Lanes[a.Lane] = s.Deck[s.DeckPos]
			s.DeckPos++
		}
	case ActionPass:
	}
}

func resolveAuction(s *State, actions TurnActions) {
	a1, a2 := actions[0].Action, actions[1].Action
	p1 := s.side(actions[0].Role)
	p2 := s.side(actions[1].Role)

	if a1.Lane == a2.Lane {
		// Contested lane: higher bid shackles it, equal bids shackle nothing.
		switch {
		case a1.Bid > a2.Bid:
			p1.Shackled[a1.Lane] = true
			p1.Score -= a1.Bid
		case a2.Bid > a1.Bid:
			p2.Shackled[a2.Lane] = true
			p2.Score -= a2.Bid
		}
		return
	}
	p1.Shackled[a1.Lane] = true
	p1.Score -= a1.Bid
	p2.Shackled[a2.Lane] = true
	p2.Score -= a2.Bid
}

func finish(s *State) {
	s.GameOver = true
	f1 := finalScore(s.P1)
	f2 := finalScore(s.P2)
	switch {
	case f1 > f2:
		s.Winner = RolePlayer1
	case f2 > f1:
		s.Winner = RolePlayer2
	default:
		s.Winner = "" // draw
	}
}

func finalScore(p PlayerSide) int {
	total := p.Score
	for lane := 0; lane < NumLanes; lane++ {
		if p.Standing[lane] {
			total += standBonus
		}
		if p.Shackled[lane] {
			total += shackleBonus
		}
	}
	return total
}
