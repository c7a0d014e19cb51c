package match

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"laneduel/internal/domain"
	"laneduel/internal/engine"
	"laneduel/internal/guard"
	"laneduel/internal/logger"
	"laneduel/internal/metrics"
	"laneduel/internal/timer"
)

// Resolution describes one resolved turn, handed to the gateway for fan-out.
type Resolution struct {
	RoomCode string
	Record   domain.TurnRecord
	State    engine.State
	NextTurn int       // 0 when the game is over
	Deadline time.Time // zero when the game is over
	GameOver bool
	Winner   engine.Role // "" on a drawn finish
	ReplayID string
}

// Events the coordinator pushes back to the gateway. Both fire outside the
// per-match lock.
type Events interface {
	// TurnResolved is invoked exactly once per resolved turn.
	TurnResolved(res Resolution)
	// MatchForfeited is invoked when a match ends by forfeit.
	MatchForfeited(roomCode string, winner engine.Role, state engine.State, replayID string)
}

// entry couples a match with its own mutex. Every mutation of the match
// runs to completion under this lock, which is what makes resolution
// atomic: no partial state between steps is ever observable.
type entry struct {
	mu sync.Mutex
	m  *domain.Match
}

// Coordinator owns all in-progress match state. Commands flow in from the
// gateway and the timer service; events flow out through Events. Different
// matches are fully independent; a given match is serialized by its entry
// lock.
type Coordinator struct {
	eng    engine.Engine
	timers *timer.Service
	clock  timer.Clock
	events Events

	mu      sync.RWMutex
	matches map[string]*entry
}

func NewCoordinator(eng engine.Engine, timers *timer.Service, clock timer.Clock) *Coordinator {
	return &Coordinator{
		eng:     eng,
		timers:  timers,
		clock:   clock,
		matches: make(map[string]*entry),
	}
}

// SetEvents wires the event sink. Must be called before the first match is
// created (the gateway and coordinator reference each other, so wiring is
// two-step).
func (c *Coordinator) SetEvents(events Events) {
	c.events = events
}

func drawSeed() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}

// CreateMatch starts the match for a room that just reached ready: fresh
// seed, initial engine state, turn timer armed for turn 1.
func (c *Coordinator) CreateMatch(room *domain.Room) *domain.Match {
	seed := drawSeed()
	state := c.eng.CreateInitialState(seed)

	playerIDs := make(map[engine.Role]string, 2)
	for _, p := range room.Players {
		if p != nil {
			playerIDs[p.Role] = p.ID
		}
	}

	m := &domain.Match{
		RoomCode:    room.Code,
		PlayerIDs:   playerIDs,
		Seed:        seed,
		State:       state,
		Turn:        1,
		TurnSeconds: room.TurnSeconds,
		TurnStart:   c.clock.Now(),
		Pending:     make(map[engine.Role]*engine.Action),
		Status:      domain.MatchActive,
	}

	e := &entry{m: m}

	// Таймер взводится до публикации: снапшот никогда не видит матч без
	// дедлайна. Сработать раньше публикации он не может - onTurnTimeout
	// просто не найдет матч.
	turnDur := time.Duration(room.TurnSeconds) * time.Second
	m.Deadline = c.timers.ArmTurn(room.Code, 1, turnDur, func(turn int) {
		c.onTurnTimeout(room.Code, turn, turnDur)
	})

	c.mu.Lock()
	c.matches[room.Code] = e
	c.mu.Unlock()

	metrics.MatchesStarted.Inc()
	metrics.ActiveMatches.Inc()
	logger.Info("match created", "room", room.Code, "seed", seed, "turn_seconds", room.TurnSeconds)
	return m
}

func (c *Coordinator) lookup(roomCode string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.matches[roomCode]
	return e, ok
}

// Snapshot is a copied, race-free view of a match for reads outside the
// coordinator (reconnect state-sync, gateway decisions).
type Snapshot struct {
	RoomCode string
	Turn     int
	State    engine.State
	Deadline time.Time
	Pending  map[engine.Role]bool
	Status   domain.MatchStatus
	Winner   engine.Role
	ReplayID string
}

// GetSnapshot returns a copied view of the match for the room.
func (c *Coordinator) GetSnapshot(roomCode string) (Snapshot, bool) {
	e, ok := c.lookup(roomCode)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.m
	return Snapshot{
		RoomCode: m.RoomCode,
		Turn:     m.Turn,
		State:    m.State,
		Deadline: m.Deadline,
		Pending:  m.PendingFlags(),
		Status:   m.Status,
		Winner:   m.Winner,
		ReplayID: m.ReplayID(),
	}, true
}

// SubmitAction validates and stores one player's action for the current
// turn. It returns bothIn=true when the second pending slot just filled, in
// which case the caller resolves via ResolveTurnNow. Rejections never
// mutate state.
func (c *Coordinator) SubmitAction(roomCode, playerID string, role engine.Role, turn int, action engine.Action) (bothIn bool, err error) {
	e, ok := c.lookup(roomCode)
	if !ok {
		return false, domain.ErrMatchNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.m

	if m.Status != domain.MatchActive {
		return false, domain.ErrMatchNotActive
	}
	if turn != m.Turn {
		return false, domain.ErrInvalidTurn
	}
	// Серверный дедлайн — единственный источник истины, часы клиента не
	// участвуют.
	if !c.timers.BeforeDeadline(roomCode) {
		return false, domain.ErrTurnExpired
	}
	if m.Pending[role] != nil {
		return false, domain.ErrAlreadySubmitted
	}
	if !c.eng.IsActionLegal(m.State, role, action) {
		return false, domain.ErrInvalidAction
	}

	a := action
	m.Pending[role] = &a
	logger.Debug("action accepted", "room", roomCode, "player", playerID, "role", role, "turn", turn, "type", action.Type)

	return m.Pending[engine.RolePlayer1] != nil && m.Pending[engine.RolePlayer2] != nil, nil
}

// ResolveTurnNow resolves the given turn because both actions arrived.
// Missing actions are synthesized by the deterministic fallback policy. The
// turn number is re-checked under the match lock: the deadline may have
// elapsed between SubmitAction returning and this call, in which case the
// timer already resolved the turn and this call must not touch the next one.
func (c *Coordinator) ResolveTurnNow(roomCode string, turn int) {
	e, ok := c.lookup(roomCode)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.m.Status != domain.MatchActive || e.m.Turn != turn {
		// A stale caller: the turn timer or a forfeit got here first.
		e.mu.Unlock()
		return
	}
	res := c.resolveLocked(e.m)
	e.mu.Unlock()

	if c.events != nil {
		c.events.TurnResolved(res)
	}
}

// onTurnTimeout is the turn-timer callback. The timer service has already
// filtered stale fires by turn number; the turn is re-checked here under
// the match lock because a resolution may have completed in between.
func (c *Coordinator) onTurnTimeout(roomCode string, turn int, turnDur time.Duration) {
	e, ok := c.lookup(roomCode)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.m.Status != domain.MatchActive || e.m.Turn != turn {
		e.mu.Unlock()
		return
	}
	logger.Info("turn deadline elapsed", "room", roomCode, "turn", turn)
	res := c.resolveLocked(e.m)
	e.mu.Unlock()

	if c.events != nil {
		c.events.TurnResolved(res)
	}
}

// resolveLocked runs the resolution algorithm under the entry lock. The
// whole sequence is one atomic step from the outside.
func (c *Coordinator) resolveLocked(m *domain.Match) Resolution {
	// (1) A finished game must never reach resolution.
	guard.NotGameOver(m.RoomCode, m.State.GameOver)
	guard.TurnAgreement(m.RoomCode, m.Turn, m.State.Turn)

	// (2) Synthesize fallbacks for empty slots.
	record := domain.TurnRecord{Turn: m.Turn}
	var assembled engine.TurnActions
	for i, role := range [2]engine.Role{engine.RolePlayer1, engine.RolePlayer2} {
		var act engine.Action
		fellBack := false
		if p := m.Pending[role]; p != nil {
			act = *p
		} else {
			act = c.fallbackAction(m.State, role)
			fellBack = true
			metrics.FallbackActions.Inc()
			logger.Info("fallback action synthesized", "room", m.RoomCode, "turn", m.Turn, "role", role, "type", act.Type)
		}
		// (3) Canonical [player1, player2] order, independent of arrival.
		assembled[i] = engine.PlayerAction{Role: role, Action: act}
		record.Actions[i] = domain.RecordedAction{PlayerID: m.PlayerIDs[role], Role: role, Action: act, Fallback: fellBack}
	}
	guard.CanonicalOrder(m.RoomCode, assembled)

	// (4) Pure resolution into the next state.
	next := c.eng.ResolveTurn(m.State, assembled)

	// (5) Append history, replace state, advance turn, clear pending slots.
	m.History = append(m.History, record)
	m.State = next
	m.Turn = next.Turn
	m.Pending = make(map[engine.Role]*engine.Action)

	// (6) The invariant that keeps history and turn counter honest.
	guard.HistoryLength(m.RoomCode, len(m.History), m.Turn)

	// (7) The old timer must not fire into the new turn.
	c.timers.CancelTurn(m.RoomCode)
	metrics.TurnsResolved.Inc()

	res := Resolution{
		RoomCode: m.RoomCode,
		Record:   record,
		State:    next,
	}

	if next.GameOver {
		// (8a) Finalize.
		m.Status = domain.MatchFinished
		m.Winner = next.Winner
		m.Deadline = time.Time{}
		res.GameOver = true
		res.Winner = next.Winner
		res.ReplayID = m.ReplayID()
		metrics.ActiveMatches.Dec()
		logger.Info("match finished", "room", m.RoomCode, "winner", next.Winner, "replay", res.ReplayID)
		return res
	}

	// (8b) Arm the next turn.
	turnDur := time.Duration(m.TurnSeconds) * time.Second
	m.TurnStart = c.clock.Now()
	m.Deadline = c.timers.ArmTurn(m.RoomCode, m.Turn, turnDur, func(turn int) {
		c.onTurnTimeout(m.RoomCode, turn, turnDur)
	})
	res.NextTurn = m.Turn
	res.Deadline = m.Deadline
	return res
}

// fallbackAction implements the deterministic timeout policy. Ordinary
// turns take the first action in the engine's canonical ordering. Auction
// turns bid zero on the first lane the role has not yet shackled (lane 0
// when every lane already is).
func (c *Coordinator) fallbackAction(state engine.State, role engine.Role) engine.Action {
	if engine.IsAuctionTurn(state.Turn) {
		side := state.Side(role)
		lane := 0
		for i := 0; i < engine.NumLanes; i++ {
			if !side.Shackled[i] {
				lane = i
				break
			}
		}
		return engine.Action{Type: engine.ActionBid, Lane: lane, Bid: 0}
	}

	legal := c.eng.GetLegalActions(state, role)
	if len(legal) == 0 {
		return engine.Action{Type: engine.ActionPass}
	}
	return legal[0]
}

// ForfeitMatch immediately finalizes the match with the other role as
// winner, independent of pending actions or timers. Used for explicit leave
// and for an exceeded disconnect budget.
func (c *Coordinator) ForfeitMatch(roomCode string, forfeitingRole engine.Role) error {
	e, ok := c.lookup(roomCode)
	if !ok {
		return domain.ErrMatchNotFound
	}

	e.mu.Lock()
	m := e.m
	if m.Status != domain.MatchActive {
		e.mu.Unlock()
		return domain.ErrMatchNotActive
	}

	winner := engine.Opponent(forfeitingRole)
	m.Status = domain.MatchFinished
	m.Winner = winner
	m.Deadline = time.Time{}
	c.timers.CancelTurn(roomCode)
	state := m.State
	replayID := m.ReplayID()
	e.mu.Unlock()

	metrics.ActiveMatches.Dec()
	metrics.Forfeits.Inc()
	logger.Info("match forfeited", "room", roomCode, "forfeiting_role", forfeitingRole, "winner", winner)

	if c.events != nil {
		c.events.MatchForfeited(roomCode, winner, state, replayID)
	}
	return nil
}

// Teardown removes the match from the store once the room is finished.
func (c *Coordinator) Teardown(roomCode string) {
	c.mu.Lock()
	e, ok := c.matches[roomCode]
	if ok {
		delete(c.matches, roomCode)
	}
	c.mu.Unlock()

	if ok {
		e.mu.Lock()
		if e.m.Status == domain.MatchActive {
			metrics.ActiveMatches.Dec()
		}
		e.mu.Unlock()
	}
}
