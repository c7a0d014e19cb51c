package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"laneduel/internal/domain"
	"laneduel/internal/engine"
	"laneduel/internal/logger"
	"laneduel/internal/metrics"
	"laneduel/internal/timer"
)

const sweepInterval = time.Minute

// Manager owns all pre-match and post-match room state. It is the single
// writer of the room store; everything is keyed by room code.
type Manager struct {
	clock       timer.Clock
	defaultTurn int // seconds, substituted when a room does not pick a timer

	mu    sync.RWMutex
	rooms map[string]*domain.Room

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func NewManager(clock timer.Clock, defaultTurnSeconds int) *Manager {
	if defaultTurnSeconds == 0 {
		defaultTurnSeconds = domain.DefaultTurnSeconds
	}
	return &Manager{
		clock:       clock,
		defaultTurn: defaultTurnSeconds,
		rooms:       make(map[string]*domain.Room),
		stopSweep:   make(chan struct{}),
	}
}

// CreateRoom makes a new waiting room with the caller seated as player1.
// timerSeconds==0 means "use the default".
func (m *Manager) CreateRoom(displayName string, timerSeconds int, connID string) (*domain.Room, *domain.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := m.uniqueCodeLocked()
	now := m.clock.Now()
	if timerSeconds == 0 {
		timerSeconds = m.defaultTurn
	}

	p := &domain.Player{
		ID:        uuid.NewString(),
		Name:      domain.SanitizeDisplayName(displayName),
		Role:      engine.RolePlayer1,
		Connected: true,
		ConnID:    connID,
	}
	r := &domain.Room{
		Code:        code,
		Status:      domain.RoomWaiting,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.RoomExpiry),
		TurnSeconds: domain.ClampTurnSeconds(timerSeconds),
		Players:     [2]*domain.Player{p, nil},
	}
	m.rooms[code] = r

	metrics.RoomsCreated.Inc()
	metrics.ActiveRooms.Inc()
	logger.Info("room created", "room", code, "player", p.ID, "turn_seconds", r.TurnSeconds)
	return r, p
}

// uniqueCodeLocked draws codes by rejection sampling until one is free,
// falling back to a time-suffixed code after a bounded number of attempts.
func (m *Manager) uniqueCodeLocked() string {
	for i := 0; i < maxCodeAttempts; i++ {
		code := randomCode(CodeLength)
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
	return timeSuffixedCode(m.clock.Now())
}

// JoinRoom seats the caller as player2. Expiry is evaluated lazily against
// the stored deadline; an expired room is deleted on detection. A
// successful join clears the expiry permanently.
func (m *Manager) JoinRoom(code, displayName, connID string) (*domain.Room, *domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[code]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	if r.Status == domain.RoomWaiting && !r.ExpiresAt.IsZero() && m.clock.Now().After(r.ExpiresAt) {
		delete(m.rooms, code)
		metrics.ActiveRooms.Dec()
		logger.Info("room expired on join attempt", "room", code)
		return nil, nil, domain.ErrRoomExpired
	}
	if r.Status != domain.RoomWaiting || r.Players[1] != nil {
		return nil, nil, domain.ErrRoomFull
	}

	p := &domain.Player{
		ID:        uuid.NewString(),
		Name:      domain.SanitizeDisplayName(displayName),
		Role:      engine.RolePlayer2,
		Connected: true,
		ConnID:    connID,
	}
	r.Players[1] = p
	r.ExpiresAt = time.Time{} // both present: expiry cancelled for good

	logger.Info("player joined room", "room", code, "player", p.ID)
	return r, p, nil
}

// ReadyUp marks the player ready and, when both players now are, atomically
// flips the room to ready and reports bothReady=true exactly once. That
// report is the trigger for match creation; any ready landing after the
// transition (duplicate, or on a finished room) is rejected, so a match is
// never created twice for one handshake and a finished room never restarts.
func (m *Manager) ReadyUp(code, playerID string) (bothReady bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[code]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if r.Status != domain.RoomWaiting {
		return false, domain.ErrAlreadyPlaying
	}
	p := r.PlayerByID(playerID)
	if p == nil {
		return false, domain.ErrUnauthorized
	}
	p.Ready = true
	if r.BothReady() {
		r.Status = domain.RoomReady
		return true, nil
	}
	return false, nil
}

// Get returns the room for the code.
func (m *Manager) Get(code string) (*domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

// SetStatus transitions the room's lifecycle status.
func (m *Manager) SetStatus(code string, status domain.RoomStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[code]; ok {
		r.Status = status
	}
}

// SetConnected updates a player's connection binding. An empty connID marks
// the player disconnected.
func (m *Manager) SetConnected(code, playerID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return
	}
	if p := r.PlayerByID(playerID); p != nil {
		p.ConnID = connID
		p.Connected = connID != ""
	}
}

// Remove deletes the room from the store (expiry, forfeit cleanup, explicit
// pre-match leave).
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; ok {
		delete(m.rooms, code)
		metrics.ActiveRooms.Dec()
		logger.Info("room removed", "room", code)
	}
}

// StartSweep launches the background removal of waiting rooms past expiry.
func (m *Manager) StartSweep() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweepExpired()
			case <-m.stopSweep:
				return
			}
		}
	}()
}

// StopSweep stops the background sweep. Safe to call more than once.
func (m *Manager) StopSweep() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}

func (m *Manager) sweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for code, r := range m.rooms {
		switch {
		case r.Status == domain.RoomWaiting && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt):
			delete(m.rooms, code)
			metrics.ActiveRooms.Dec()
			logger.Info("swept expired room", "room", code)
		case r.Status == domain.RoomFinished && !anyoneConnected(r):
			// финальный game-over уже разослан, сокетов не осталось
			delete(m.rooms, code)
			metrics.ActiveRooms.Dec()
			logger.Info("swept stale finished room", "room", code)
		}
	}
}

func anyoneConnected(r *domain.Room) bool {
	for _, p := range r.Players {
		if p != nil && p.Connected {
			return true
		}
	}
	return false
}
