package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/duel/internal/game"
)

func EncodeOutbound(o Outbound, requestID string) ([]byte, error) {
	env := Envelope{SessionID: o.Session(), RequestID: requestID}
	switch m := o.(type) {
	case Join:
		env.Type = TypeJoin
	case Forfeit:
		env.Type = TypeForfeit
	case MoveIntent:
		env.Type = TypeMove
		raw, err := json.Marshal(m.Move)
		if err != nil {
			return nil, fmt.Errorf("marshal move: %w", err)
		}
		env.Payload = raw
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, o)
	}
	if env.SessionID == "" {
		return nil, ErrMissingSession
	}
	return json.Marshal(env)
}

// DecodeOutbound parses a client frame. The request id is returned so error
// frames can be correlated with it.
func DecodeOutbound(data []byte) (Outbound, string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.SessionID == "" {
		return nil, env.RequestID, ErrMissingSession
	}
	switch env.Type {
	case TypeJoin:
		return Join{SessionID: env.SessionID}, env.RequestID, nil
	case TypeForfeit:
		return Forfeit{SessionID: env.SessionID}, env.RequestID, nil
	case TypeMove:
		var m game.Move
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, env.RequestID, fmt.Errorf("decode move: %w", err)
		}
		return MoveIntent{SessionID: env.SessionID, Move: m}, env.RequestID, nil
	default:
		return nil, env.RequestID, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func EncodeInbound(ev Inbound) ([]byte, error) {
	var (
		env     Envelope
		payload any
	)
	switch e := ev.(type) {
	case StateEvent:
		env = Envelope{Type: TypeState, SessionID: e.Session.ID}
		payload = e.Session
	case UpdateEvent:
		env = Envelope{Type: TypeUpdate, SessionID: e.Session.ID}
		payload = e.Session
	case EndedEvent:
		env = Envelope{Type: TypeEnded, SessionID: e.SessionID}
		payload = endedPayload{Winner: e.Winner, IsDraw: e.IsDraw, Session: e.Session}
	case TimeoutEvent:
		env = Envelope{Type: TypeTimeout, SessionID: e.SessionID}
		payload = timeoutPayload{WinnerID: e.WinnerID, Session: e.Session}
	case ForfeitedEvent:
		env = Envelope{Type: TypeForfeited, SessionID: e.SessionID}
		payload = forfeitedPayload{ForfeitedBy: e.ForfeitedBy, Winner: e.Winner, Session: e.Session}
	case ErrorEvent:
		env = Envelope{Type: TypeError, SessionID: e.SessionID, RequestID: e.RequestID}
		payload = errorPayload{Message: e.Message, Code: e.Code}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", env.Type, err)
	}
	env.Payload = raw
	return json.Marshal(env)
}

func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeState, TypeUpdate:
		s := &game.Session{}
		if err := json.Unmarshal(env.Payload, s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if env.Type == TypeState {
			return StateEvent{Session: s}, nil
		}
		return UpdateEvent{Session: s}, nil
	case TypeEnded:
		var p endedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode ended: %w", err)
		}
		return EndedEvent{SessionID: env.SessionID, Winner: p.Winner, IsDraw: p.IsDraw, Session: p.Session}, nil
	case TypeTimeout:
		var p timeoutPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode timeout: %w", err)
		}
		return TimeoutEvent{SessionID: env.SessionID, WinnerID: p.WinnerID, Session: p.Session}, nil
	case TypeForfeited:
		var p forfeitedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode forfeited: %w", err)
		}
		return ForfeitedEvent{SessionID: env.SessionID, ForfeitedBy: p.ForfeitedBy, Winner: p.Winner, Session: p.Session}, nil
	case TypeError:
		var p errorPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode error: %w", err)
			}
		}
		return ErrorEvent{SessionID: env.SessionID, RequestID: env.RequestID, Code: p.Code, Message: p.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
