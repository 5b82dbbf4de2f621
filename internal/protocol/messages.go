// Package protocol defines the frames exchanged with the game service over
// the session websocket.
//
// Client -> service
//
//	join      {sessionId}
//	move      {sessionId, payload: {cell:{row,col}} | {column} | {type:"setWord"|"guess", word}}
//	forfeit   {sessionId}
//
// Service -> client
//
//	state     full snapshot on join
//	update    snapshot after an accepted move (or a status change such as waiting -> active)
//	ended     {winner?, isDraw, session?}
//	timeout   {winnerId, session?}
//	forfeited {forfeitedBy, winner?, session?}
//	error     {message, code?}; never changes session status
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/duel/internal/game"
)

type Type string

const (
	TypeJoin    Type = "join"
	TypeMove    Type = "move"
	TypeForfeit Type = "forfeit"

	TypeState     Type = "state"
	TypeUpdate    Type = "update"
	TypeEnded     Type = "ended"
	TypeTimeout   Type = "timeout"
	TypeForfeited Type = "forfeited"
	TypeError     Type = "error"
)

// Error codes carried by error frames.
const (
	CodeBadFrame     = "bad_frame"
	CodeUnknownType  = "unknown_type"
	CodeNotFound     = "session_not_found"
	CodeNotJoined    = "not_joined"
	CodeNotAPlayer   = "not_a_player"
	CodeIllegalMove  = "illegal_move"
	CodeSessionEnded = "session_ended"
)

var ErrUnknownType = errors.New("unknown frame type")
var ErrMissingSession = errors.New("frame has no session")

// Envelope is the frame every message travels in.
type Envelope struct {
	Type      Type            `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a client intent.
type Outbound interface {
	isOutbound()
	Session() string
}

type Join struct{ SessionID string }

type MoveIntent struct {
	SessionID string
	Move      game.Move
}

type Forfeit struct{ SessionID string }

func (Join) isOutbound()       {}
func (MoveIntent) isOutbound() {}
func (Forfeit) isOutbound()    {}

func (j Join) Session() string       { return j.SessionID }
func (m MoveIntent) Session() string { return m.SessionID }
func (f Forfeit) Session() string    { return f.SessionID }

// Inbound is an event delivered to the session store.
type Inbound interface{ isInbound() }

// StateEvent is the full snapshot sent on join.
type StateEvent struct{ Session *game.Session }

// UpdateEvent is the snapshot sent after an accepted move.
type UpdateEvent struct{ Session *game.Session }

type EndedEvent struct {
	SessionID string
	Winner    string
	IsDraw    bool
	Session   *game.Session
}

type TimeoutEvent struct {
	SessionID string
	WinnerID  string
	Session   *game.Session
}

type ForfeitedEvent struct {
	SessionID   string
	ForfeitedBy string
	Winner      string
	Session     *game.Session
}

type ErrorEvent struct {
	SessionID string
	RequestID string
	Code      string
	Message   string
}

// Disconnected is produced locally when the transport drops. It never
// travels on the wire.
type Disconnected struct{ Err error }

func (StateEvent) isInbound()     {}
func (UpdateEvent) isInbound()    {}
func (EndedEvent) isInbound()     {}
func (TimeoutEvent) isInbound()   {}
func (ForfeitedEvent) isInbound() {}
func (ErrorEvent) isInbound()     {}
func (Disconnected) isInbound()   {}

type endedPayload struct {
	Winner  string        `json:"winner,omitempty"`
	IsDraw  bool          `json:"isDraw"`
	Session *game.Session `json:"session,omitempty"`
}

type timeoutPayload struct {
	WinnerID string        `json:"winnerId"`
	Session  *game.Session `json:"session,omitempty"`
}

type forfeitedPayload struct {
	ForfeitedBy string        `json:"forfeitedBy"`
	Winner      string        `json:"winner,omitempty"`
	Session     *game.Session `json:"session,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
