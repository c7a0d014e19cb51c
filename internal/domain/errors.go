package domain

import "errors"

// ProtocolError is a user-facing error with a stable wire code. It never
// crashes the process and never accompanies a state mutation.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrRoomNotFound     = &ProtocolError{Code: "room-not-found", Message: "room does not exist"}
	ErrRoomFull         = &ProtocolError{Code: "room-full", Message: "room already has two players"}
	ErrRoomExpired      = &ProtocolError{Code: "room-expired", Message: "room expired before anyone joined"}
	ErrAlreadySubmitted = &ProtocolError{Code: "already-submitted", Message: "action already submitted this turn"}
	ErrAlreadyPlaying   = &ProtocolError{Code: "already-playing", Message: "match already in progress"}
	ErrTurnExpired      = &ProtocolError{Code: "turn-expired", Message: "turn deadline has passed"}
	ErrInvalidTurn      = &ProtocolError{Code: "invalid-turn", Message: "submitted turn is not the current turn"}
	ErrInvalidAction    = &ProtocolError{Code: "invalid-action", Message: "action is not legal in the current state"}
	ErrNotInRoom        = &ProtocolError{Code: "not-in-room", Message: "connection is not bound to a room"}
	ErrMatchNotFound    = &ProtocolError{Code: "match-not-found", Message: "no match for this room"}
	ErrMatchNotActive   = &ProtocolError{Code: "match-not-active", Message: "match is not active"}
	ErrUnauthorized     = &ProtocolError{Code: "unauthorized", Message: "unknown player for this room"}
	ErrInternal         = &ProtocolError{Code: "internal-error", Message: "internal error"}
)

// AsProtocol extracts a ProtocolError from err, or wraps err as an internal
// error so the client always receives a typed code.
func AsProtocol(err error) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return ErrInternal
}
