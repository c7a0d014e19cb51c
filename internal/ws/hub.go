package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"laneduel/internal/domain"
	"laneduel/internal/engine"
	"laneduel/internal/guard"
	"laneduel/internal/logger"
	"laneduel/internal/match"
	"laneduel/internal/metrics"
	"laneduel/internal/room"
	"laneduel/internal/timer"
)

// binding ties a connection to its seat.
type binding struct {
	roomCode string
	playerID string
	role     engine.Role
}

// Hub is the session gateway: it owns the connection registry, maps
// connection identity to (room, player, role), routes inbound messages to
// the room manager and match coordinator, and fans resulting events back
// out to the right recipients. Commands flow one way in, events one way
// out.
type Hub struct {
	rooms  *room.Manager
	coord  *match.Coordinator
	timers *timer.Service

	mu       sync.RWMutex
	clients  map[string]*Client // connID -> client
	bindings map[string]binding // connID -> seat
	byPlayer map[string]string  // playerID -> connID
}

func NewHub(rooms *room.Manager, coord *match.Coordinator, timers *timer.Service) *Hub {
	return &Hub{
		rooms:    rooms,
		coord:    coord,
		timers:   timers,
		clients:  make(map[string]*Client),
		bindings: make(map[string]binding),
		byPlayer: make(map[string]string),
	}
}

// Accept registers an upgraded connection and runs its pumps. Blocks until
// the connection closes (the http handler calls it from its own goroutine).
func (h *Hub) Accept(conn *websocket.Conn) {
	c := newClient(uuid.NewString(), conn, h)

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	metrics.ConnectedClients.Inc()
	logger.Debug("connection accepted", "conn", c.ID)
	c.Run()
}

// HandleMessage routes one inbound frame. Invariant-violation panics from
// the guard layer are recovered here: logged with context and reported to
// the offending connection as internal-error, per the loud-failure policy.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			if iv, ok := r.(*guard.InvariantViolation); ok {
				logger.Error("invariant violation", "conn", c.ID, "name", iv.Name, "context", iv.Context)
			} else {
				logger.Error("panic in message handler", "conn", c.ID, "panic", r)
			}
			h.sendError(c, domain.ErrInternal)
		}
	}()

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, domain.ErrInternal)
		return
	}

	switch env.Type {
	case MsgCreateRoom:
		h.handleCreateRoom(c, env.Payload)
	case MsgJoinRoom:
		h.handleJoinRoom(c, env.Payload)
	case MsgReady:
		h.handleReady(c)
	case MsgAction:
		h.handleAction(c, env.Payload)
	case MsgLeave:
		h.handleLeave(c)
	case MsgReconnect:
		h.handleReconnect(c, env.Payload)
	default:
		logger.Warn("unknown message type", "conn", c.ID, "type", env.Type)
	}
}

func (h *Hub) handleCreateRoom(c *Client, raw json.RawMessage) {
	p, err := decodePayload[createRoomPayload](raw)
	if err != nil {
		h.sendError(c, domain.ErrInternal)
		return
	}

	r, player := h.rooms.CreateRoom(p.DisplayName, p.TimerSeconds, c.ID)
	h.bind(c.ID, r.Code, player.ID, player.Role)

	h.send(c, Message{Type: EvtRoomCreated, Payload: map[string]any{
		"roomCode": r.Code,
		"playerId": player.ID,
	}})
}

func (h *Hub) handleJoinRoom(c *Client, raw json.RawMessage) {
	p, err := decodePayload[joinRoomPayload](raw)
	if err != nil {
		h.sendError(c, domain.ErrInternal)
		return
	}

	r, player, jerr := h.rooms.JoinRoom(p.RoomCode, p.DisplayName, c.ID)
	if jerr != nil {
		h.sendError(c, domain.AsProtocol(jerr))
		return
	}
	h.bind(c.ID, r.Code, player.ID, player.Role)

	host := r.Players[0]
	h.send(c, Message{Type: EvtRoomJoined, Payload: map[string]any{
		"playerId":     player.ID,
		"opponentName": host.Name,
		"timerSeconds": r.TurnSeconds,
	}})
	h.sendToPlayer(host.ID, Message{Type: EvtPlayerJoined, Payload: map[string]any{
		"opponentName": player.Name,
	}})
}

func (h *Hub) handleReady(c *Client) {
	b, ok := h.bindingOf(c.ID)
	if !ok {
		h.sendError(c, domain.ErrNotInRoom)
		return
	}

	bothReady, err := h.rooms.ReadyUp(b.roomCode, b.playerID)
	if err != nil {
		h.sendError(c, domain.AsProtocol(err))
		return
	}

	h.sendToRoom(b.roomCode, Message{Type: EvtPlayerReady, Payload: map[string]any{
		"playerId": b.playerID,
	}}, "")

	if !bothReady {
		return
	}

	// ReadyUp перевел комнату в ready атомарно: true приходит ровно один раз.
	r, ok := h.rooms.Get(b.roomCode)
	if !ok {
		h.sendError(c, domain.ErrRoomNotFound)
		return
	}
	m := h.coord.CreateMatch(r)
	h.rooms.SetStatus(b.roomCode, domain.RoomPlaying)

	// Персональный game-start: каждому его роль.
	for _, p := range r.Players {
		if p == nil {
			continue
		}
		h.sendToPlayer(p.ID, Message{Type: EvtGameStart, Payload: map[string]any{
			"seed":         m.Seed,
			"yourRole":     p.Role,
			"turnDeadline": m.Deadline.UnixMilli(),
			"initialState": m.State,
		}})
	}
}

func (h *Hub) handleAction(c *Client, raw json.RawMessage) {
	b, ok := h.bindingOf(c.ID)
	if !ok {
		h.sendError(c, domain.ErrNotInRoom)
		return
	}
	p, err := decodePayload[actionPayload](raw)
	if err != nil {
		h.sendError(c, domain.ErrInternal)
		return
	}

	bothIn, serr := h.coord.SubmitAction(b.roomCode, b.playerID, b.role, p.Turn, p.Action)
	if serr != nil {
		h.sendError(c, domain.AsProtocol(serr))
		return
	}

	h.send(c, Message{Type: EvtActionAck, Payload: map[string]any{"turn": p.Turn}})
	h.sendToRoom(b.roomCode, Message{Type: EvtOpponentReady, Payload: map[string]any{"turn": p.Turn}}, c.ID)

	if bothIn {
		h.coord.ResolveTurnNow(b.roomCode, p.Turn)
	}
}

func (h *Hub) handleLeave(c *Client) {
	b, ok := h.bindingOf(c.ID)
	if !ok {
		h.sendError(c, domain.ErrNotInRoom)
		return
	}

	if snap, ok := h.coord.GetSnapshot(b.roomCode); ok && snap.Status == domain.MatchActive {
		// Mid-match leave is a forfeit; MatchForfeited fans out game-over.
		_ = h.coord.ForfeitMatch(b.roomCode, b.role)
		return
	}

	// Pre-match leave destroys the room.
	r, ok := h.rooms.Get(b.roomCode)
	if ok {
		for _, p := range r.Players {
			if p != nil && p.ID != b.playerID {
				h.sendToPlayer(p.ID, Message{Type: EvtError, Payload: map[string]any{
					"code":    domain.ErrRoomNotFound.Code,
					"message": "opponent left the room",
				}})
				h.unbindPlayer(p.ID)
			}
		}
	}
	h.rooms.Remove(b.roomCode)
	h.timers.CleanupRoom(b.roomCode)
	h.unbind(c.ID)
}

func (h *Hub) handleReconnect(c *Client, raw json.RawMessage) {
	p, err := decodePayload[reconnectPayload](raw)
	if err != nil {
		h.sendError(c, domain.ErrInternal)
		return
	}

	r, ok := h.rooms.Get(p.RoomCode)
	if !ok {
		h.sendError(c, domain.ErrRoomNotFound)
		return
	}
	player := r.PlayerByID(p.PlayerID)
	if player == nil {
		h.sendError(c, domain.ErrUnauthorized)
		return
	}

	// Bank the ongoing episode first, then check the match-wide budget.
	total, exceeded := h.timers.ClearDisconnect(p.RoomCode, p.PlayerID)
	snap, hasMatch := h.coord.GetSnapshot(p.RoomCode)
	if exceeded && hasMatch && snap.Status == domain.MatchActive {
		logger.Info("disconnect budget exceeded on reconnect", "room", p.RoomCode, "player", p.PlayerID, "total", total)
		winner := engine.Opponent(player.Role)
		_ = h.coord.ForfeitMatch(p.RoomCode, player.Role)
		// The returning player is not bound yet, so deliver the verdict
		// directly before the match is torn down from under us.
		h.send(c, gameOverMessage(winner, snap.State, snap.ReplayID))
		return
	}

	h.rooms.SetConnected(p.RoomCode, p.PlayerID, c.ID)
	h.bind(c.ID, p.RoomCode, p.PlayerID, player.Role)
	logger.Info("player reconnected", "room", p.RoomCode, "player", p.PlayerID, "disconnected_total", total)

	// Full snapshot so the client resumes without replaying history.
	state := map[string]any{
		"gameState":    nil,
		"turn":         0,
		"pendingFlags": map[engine.Role]bool{},
		"turnDeadline": nil,
	}
	if hasMatch {
		state["gameState"] = snap.State
		state["turn"] = snap.Turn
		state["pendingFlags"] = snap.Pending
		if !snap.Deadline.IsZero() {
			state["turnDeadline"] = snap.Deadline.UnixMilli()
		}
	}
	h.send(c, Message{Type: EvtStateSync, Payload: state})
}

// OnDisconnect handles an abrupt connection loss: marks the player
// disconnected and, mid-match, opens the disconnect grace window.
func (h *Hub) OnDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	b, bound := h.bindings[c.ID]
	if bound {
		delete(h.bindings, c.ID)
		if h.byPlayer[b.playerID] == c.ID {
			delete(h.byPlayer, b.playerID)
		}
	}
	h.mu.Unlock()

	metrics.ConnectedClients.Dec()
	if !bound {
		return
	}

	// Игрок мог уже переподключиться на новом сокете, пока этот умирал
	// (read loop замечает обрыв только по pongWait). Смерть устаревшего
	// сокета не трогает живую привязку.
	if r, ok := h.rooms.Get(b.roomCode); ok {
		if p := r.PlayerByID(b.playerID); p != nil && p.ConnID != "" && p.ConnID != c.ID {
			logger.Debug("stale socket closed after reconnect", "room", b.roomCode, "player", b.playerID, "conn", c.ID)
			return
		}
	}

	h.rooms.SetConnected(b.roomCode, b.playerID, "")
	logger.Info("player disconnected", "room", b.roomCode, "player", b.playerID)

	snap, ok := h.coord.GetSnapshot(b.roomCode)
	if ok && snap.Status == domain.MatchActive {
		roomCode, role := b.roomCode, b.role
		exceeded := h.timers.StartDisconnect(roomCode, b.playerID, func() {
			logger.Info("disconnect grace expired", "room", roomCode, "player", b.playerID)
			_ = h.coord.ForfeitMatch(roomCode, role)
		})
		if exceeded {
			_ = h.coord.ForfeitMatch(roomCode, role)
		}
		return
	}

	// Post-match room with no one left: drop it.
	if r, ok := h.rooms.Get(b.roomCode); ok && r.Status == domain.RoomFinished {
		if !anyoneConnected(r) {
			h.rooms.Remove(b.roomCode)
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

// TurnResolved implements match.Events: fan out one resolved turn, plus
// game-over when the resolution finished the game.
func (h *Hub) TurnResolved(res match.Resolution) {
	payload := map[string]any{
		"turn":         res.Record.Turn,
		"actions":      res.Record.Actions,
		"newState":     res.State,
		"nextDeadline": nil,
	}
	if !res.GameOver {
		payload["nextDeadline"] = res.Deadline.UnixMilli()
	}
	h.sendToRoom(res.RoomCode, Message{Type: EvtTurnResolved, Payload: payload}, "")

	if res.GameOver {
		h.sendToRoom(res.RoomCode, gameOverMessage(res.Winner, res.State, res.ReplayID), "")
		h.finalizeRoom(res.RoomCode)
	}
}

// MatchForfeited implements match.Events.
func (h *Hub) MatchForfeited(roomCode string, winner engine.Role, state engine.State, replayID string) {
	h.sendToRoom(roomCode, gameOverMessage(winner, state, replayID), "")
	h.finalizeRoom(roomCode)
	h.rooms.Remove(roomCode)
}

func gameOverMessage(winner engine.Role, state engine.State, replayID string) Message {
	payload := map[string]any{
		"winner":     nil,
		"finalState": state,
		"replayId":   replayID,
	}
	if winner != "" {
		payload["winner"] = winner
	}
	return Message{Type: EvtGameOver, Payload: payload}
}

// finalizeRoom marks the room finished and releases everything keyed by it.
func (h *Hub) finalizeRoom(roomCode string) {
	h.rooms.SetStatus(roomCode, domain.RoomFinished)
	h.timers.CleanupRoom(roomCode)
	h.coord.Teardown(roomCode)
}

// --- registry plumbing ---

func (h *Hub) bind(connID, roomCode, playerID string, role engine.Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bindings[connID] = binding{roomCode: roomCode, playerID: playerID, role: role}
	h.byPlayer[playerID] = connID
}

func (h *Hub) unbind(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.bindings[connID]; ok {
		delete(h.bindings, connID)
		if h.byPlayer[b.playerID] == connID {
			delete(h.byPlayer, b.playerID)
		}
	}
}

func (h *Hub) unbindPlayer(playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if connID, ok := h.byPlayer[playerID]; ok {
		delete(h.byPlayer, playerID)
		delete(h.bindings, connID)
	}
}

func (h *Hub) bindingOf(connID string) (binding, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.bindings[connID]
	return b, ok
}

// send pushes a message to one client, dropping it if the outbound buffer
// is full (a slow client must not stall a match).
func (h *Hub) send(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal outbound message", "error", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Warn("outbound buffer full, dropping message", "conn", c.ID, "type", msg.Type)
	}
}

func (h *Hub) sendToPlayer(playerID string, msg Message) {
	h.mu.RLock()
	connID, ok := h.byPlayer[playerID]
	var c *Client
	if ok {
		c = h.clients[connID]
	}
	h.mu.RUnlock()

	if c != nil {
		h.send(c, msg)
	}
}

// sendToRoom fans a message out to every bound player of the room,
// optionally excluding one connection (the sender being acked separately).
func (h *Hub) sendToRoom(roomCode string, msg Message, exceptConnID string) {
	r, ok := h.rooms.Get(roomCode)
	if !ok {
		return
	}

	h.mu.RLock()
	var targets []*Client
	for _, p := range r.Players {
		if p == nil || p.ConnID == "" || p.ConnID == exceptConnID {
			continue
		}
		if c, ok := h.clients[p.ConnID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, msg)
	}
}

func (h *Hub) sendError(c *Client, pe *domain.ProtocolError) {
	h.send(c, Message{Type: EvtError, Payload: map[string]any{
		"code":    pe.Code,
		"message": pe.Message,
	}})
}
