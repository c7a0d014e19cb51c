package timer

import (
	"sync"
	"time"

	"laneduel/internal/logger"
)

const (
	// GracePeriod bounds a single disconnect episode.
	GracePeriod = 15 * time.Second
	// DisconnectBudget bounds total disconnected time across one match.
	DisconnectBudget = 60 * time.Second
)

// turnTimer is the single live per-room turn deadline.
type turnTimer struct {
	turn      int
	deadline  time.Time
	cancel    CancelFunc
	paused    bool
	remaining time.Duration
	fire      func(turn int)
}

// disconnectTimer covers one disconnect episode of one player.
type disconnectTimer struct {
	since    time.Time
	deadline time.Time
	cancel   CancelFunc
}

type pairKey struct {
	room   string
	player string
}

// Service owns every scheduled callback: per-room turn deadlines and
// per-(room,player) disconnect grace timers, plus the cumulative
// disconnected-time accounting that survives reconnect cycles.
type Service struct {
	clock Clock
	sched Scheduler

	mu    sync.Mutex
	turns map[string]*turnTimer
	disc  map[pairKey]*disconnectTimer
	spent map[pairKey]time.Duration
}

func NewService(clock Clock, sched Scheduler) *Service {
	return &Service{
		clock: clock,
		sched: sched,
		turns: make(map[string]*turnTimer),
		disc:  make(map[pairKey]*disconnectTimer),
		spent: make(map[pairKey]time.Duration),
	}
}

// ArmTurn replaces the room's turn timer with one for the given turn number
// and returns the new deadline. Any prior timer for the room is cancelled
// first, so at most one turn callback is ever live per room.
func (s *Service) ArmTurn(roomCode string, turn int, d time.Duration, fire func(turn int)) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.turns[roomCode]; ok && old.cancel != nil {
		old.cancel()
	}

	deadline := s.clock.Now().Add(d)
	tt := &turnTimer{turn: turn, deadline: deadline, fire: fire}
	tt.cancel = s.sched.AfterFunc(d, func() { s.fireTurn(roomCode, turn) })
	s.turns[roomCode] = tt
	return deadline
}

// fireTurn runs a scheduled turn callback. A callback from a turn the room
// has since moved past is dropped here (the coordinator re-checks the turn
// number again under its own lock).
func (s *Service) fireTurn(roomCode string, turn int) {
	s.mu.Lock()
	tt, ok := s.turns[roomCode]
	if !ok || tt.turn != turn || tt.paused {
		s.mu.Unlock()
		logger.Debug("timer: dropping stale turn callback", "room", roomCode, "turn", turn)
		return
	}
	delete(s.turns, roomCode)
	fire := tt.fire
	s.mu.Unlock()

	fire(turn)
}

// CancelTurn drops the room's turn timer, if any.
func (s *Service) CancelTurn(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tt, ok := s.turns[roomCode]; ok {
		if tt.cancel != nil {
			tt.cancel()
		}
		delete(s.turns, roomCode)
	}
}

// Deadline returns the room's current turn deadline.
func (s *Service) Deadline(roomCode string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.turns[roomCode]
	if !ok {
		return time.Time{}, false
	}
	return tt.deadline, true
}

// BeforeDeadline is the authoritative deadline check for action submission.
// Client-reported time never participates.
func (s *Service) BeforeDeadline(roomCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.turns[roomCode]
	if !ok {
		return false
	}
	if tt.paused {
		return true
	}
	return s.clock.Now().Before(tt.deadline)
}

// PauseTurn suspends the room's turn timer, preserving the remaining time.
// Pausing an already-paused or absent timer is a no-op.
func (s *Service) PauseTurn(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.turns[roomCode]
	if !ok || tt.paused {
		return
	}
	remaining := tt.deadline.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	if tt.cancel != nil {
		tt.cancel()
	}
	tt.paused = true
	tt.remaining = remaining
	tt.cancel = nil
}

// ResumeTurn re-arms a paused turn timer with its preserved remaining time
// and returns the new deadline.
func (s *Service) ResumeTurn(roomCode string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.turns[roomCode]
	if !ok || !tt.paused {
		return time.Time{}, false
	}
	turn := tt.turn
	tt.paused = false
	tt.deadline = s.clock.Now().Add(tt.remaining)
	tt.cancel = s.sched.AfterFunc(tt.remaining, func() { s.fireTurn(roomCode, turn) })
	tt.remaining = 0
	return tt.deadline, true
}

// StartDisconnect opens a grace window for the player, replacing any prior
// one for the same (room, player) pair. The effective window is the episode
// grace capped by whatever remains of the cumulative budget; exceeded=true
// means the budget is already spent and the caller should forfeit now.
func (s *Service) StartDisconnect(roomCode, playerID string, fire func()) (exceeded bool) {
	key := pairKey{roomCode, playerID}

	s.mu.Lock()
	if old, ok := s.disc[key]; ok && old.cancel != nil {
		old.cancel()
		delete(s.disc, key)
	}

	remainingBudget := DisconnectBudget - s.spent[key]
	if remainingBudget <= 0 {
		s.mu.Unlock()
		return true
	}
	window := GracePeriod
	if window > remainingBudget {
		window = remainingBudget
	}

	now := s.clock.Now()
	dt := &disconnectTimer{since: now, deadline: now.Add(window)}
	dt.cancel = s.sched.AfterFunc(window, func() {
		s.mu.Lock()
		cur, ok := s.disc[key]
		if !ok || cur != dt {
			s.mu.Unlock()
			return
		}
		delete(s.disc, key)
		s.spent[key] += window
		s.mu.Unlock()
		fire()
	})
	s.disc[key] = dt
	s.mu.Unlock()
	return false
}

// ClearDisconnect gracefully closes the player's disconnect episode (the
// player came back), banking the elapsed time into the cumulative counter.
// It returns the new cumulative total and whether the budget is now spent.
func (s *Service) ClearDisconnect(roomCode, playerID string) (total time.Duration, exceeded bool) {
	key := pairKey{roomCode, playerID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dt, ok := s.disc[key]; ok {
		if dt.cancel != nil {
			dt.cancel()
		}
		delete(s.disc, key)
		elapsed := s.clock.Now().Sub(dt.since)
		if elapsed < 0 {
			elapsed = 0
		}
		s.spent[key] += elapsed
	}
	total = s.spent[key]
	return total, total >= DisconnectBudget
}

// CumulativeDisconnected returns the banked disconnected time for the pair.
func (s *Service) CumulativeDisconnected(roomCode, playerID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent[pairKey{roomCode, playerID}]
}

// CleanupRoom releases every timer and counter owned by the room. This is
// the only place the cumulative disconnect counters reset.
func (s *Service) CleanupRoom(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tt, ok := s.turns[roomCode]; ok {
		if tt.cancel != nil {
			tt.cancel()
		}
		delete(s.turns, roomCode)
	}
	for key, dt := range s.disc {
		if key.room == roomCode {
			if dt.cancel != nil {
				dt.cancel()
			}
			delete(s.disc, key)
		}
	}
	for key := range s.spent {
		if key.room == roomCode {
			delete(s.spent, key)
		}
	}
}
