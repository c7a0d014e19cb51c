package ws

import (
	"encoding/json"

	"laneduel/internal/engine"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound message kinds.
const (
	MsgCreateRoom = "create-room"
	MsgJoinRoom   = "join-room"
	MsgReady      = "ready"
	MsgAction     = "action"
	MsgLeave      = "leave"
	MsgReconnect  = "reconnect"
)

// Outbound message kinds.
const (
	EvtRoomCreated   = "room-created"
	EvtRoomJoined    = "room-joined"
	EvtPlayerJoined  = "player-joined"
	EvtPlayerReady   = "player-ready"
	EvtGameStart     = "game-start"
	EvtActionAck     = "action-ack"
	EvtOpponentReady = "opponent-ready"
	EvtTurnResolved  = "turn-resolved"
	EvtGameOver      = "game-over"
	EvtStateSync     = "state-sync"
	EvtError         = "error"
)

type createRoomPayload struct {
	DisplayName  string `json:"displayName"`
	TimerSeconds int    `json:"timerSeconds,omitempty"`
}

type joinRoomPayload struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
}

type actionPayload struct {
	Turn   int           `json:"turn"`
	Action engine.Action `json:"action"`
}

type reconnectPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}
