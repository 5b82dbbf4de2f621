package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

type Kind string

const (
	KindTicTacToe   Kind = "tictactoe"
	KindConnectFour Kind = "connectfour"
	KindWordDuel    Kind = "wordduel"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timedOut"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further moves can be accepted in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimedOut, StatusAbandoned:
		return true
	}
	return false
}

func (s Status) valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusCompleted, StatusTimedOut, StatusAbandoned:
		return true
	}
	return false
}

var ErrInvalidSession = errors.New("invalid session")

// State is the kind-specific part of a session.
type State interface {
	Kind() Kind
	Clone() State
}

// Session is one two-player game as adjudicated by the game service.
// Everything here is owned by the service; clients hold copies only.
type Session struct {
	ID            string
	Kind          Kind
	Status        Status
	Players       [2]string
	CurrentTurn   string
	TurnStartedAt time.Time
	State         State
	Winner        string
	IsDraw        bool
	ForfeitedBy   string
	Version       int64
	Scores        map[string]int
	CreatedAt     time.Time
}

type sessionJSON struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"gameKind"`
	Status        Status          `json:"status"`
	Players       [2]string       `json:"players"`
	CurrentTurn   string          `json:"currentTurn,omitempty"`
	TurnStartedAt time.Time       `json:"turnStartedAt"`
	State         json.RawMessage `json:"state,omitempty"`
	Winner        string          `json:"winner,omitempty"`
	IsDraw        bool            `json:"isDraw"`
	ForfeitedBy   string          `json:"forfeitedBy,omitempty"`
	Version       int64           `json:"version"`
	Scores        map[string]int  `json:"scores,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:            s.ID,
		Kind:          s.Kind,
		Status:        s.Status,
		Players:       s.Players,
		CurrentTurn:   s.CurrentTurn,
		TurnStartedAt: s.TurnStartedAt,
		Winner:        s.Winner,
		IsDraw:        s.IsDraw,
		ForfeitedBy:   s.ForfeitedBy,
		Version:       s.Version,
		Scores:        s.Scores,
		CreatedAt:     s.CreatedAt,
	}
	if s.State != nil {
		raw, err := json.Marshal(s.State)
		if err != nil {
			return nil, fmt.Errorf("marshal %s state: %w", s.Kind, err)
		}
		out.State = raw
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Session{
		ID:            in.ID,
		Kind:          in.Kind,
		Status:        in.Status,
		Players:       in.Players,
		CurrentTurn:   in.CurrentTurn,
		TurnStartedAt: in.TurnStartedAt,
		Winner:        in.Winner,
		IsDraw:        in.IsDraw,
		ForfeitedBy:   in.ForfeitedBy,
		Version:       in.Version,
		Scores:        in.Scores,
		CreatedAt:     in.CreatedAt,
	}
	if len(in.State) == 0 || string(in.State) == "null" {
		return nil
	}
	v, err := Lookup(in.Kind)
	if err != nil {
		return err
	}
	st, err := v.DecodeState(in.State)
	if err != nil {
		return fmt.Errorf("decode %s state: %w", in.Kind, err)
	}
	s.State = st
	return nil
}

// Clone returns a deep copy so cached sessions never alias event payloads.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.State != nil {
		c.State = s.State.Clone()
	}
	if s.Scores != nil {
		c.Scores = maps.Clone(s.Scores)
	}
	return &c
}

func (s *Session) HasPlayer(id string) bool {
	return id != "" && (s.Players[0] == id || s.Players[1] == id)
}

// Opponent returns the other participant, or "" if id is not a player.
func (s *Session) Opponent(id string) string {
	switch id {
	case s.Players[0]:
		return s.Players[1]
	case s.Players[1]:
		return s.Players[0]
	}
	return ""
}

// Validate checks the structural invariants every authoritative snapshot
// must satisfy.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSession)
	}
	if _, err := Lookup(s.Kind); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !s.Status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSession, s.Status)
	}
	if s.Players[0] == "" || s.Players[1] == "" || s.Players[0] == s.Players[1] {
		return fmt.Errorf("%w: need two distinct players", ErrInvalidSession)
	}
	if s.Status == StatusActive {
		if !s.HasPlayer(s.CurrentTurn) {
			return fmt.Errorf("%w: current turn %q is not a player", ErrInvalidSession, s.CurrentTurn)
		}
	} else if s.CurrentTurn != "" {
		return fmt.Errorf("%w: current turn set while %s", ErrInvalidSession, s.Status)
	}
	if s.Winner != "" && s.IsDraw {
		return fmt.Errorf("%w: winner and draw both set", ErrInvalidSession)
	}
	if s.Winner != "" && !s.HasPlayer(s.Winner) {
		return fmt.Errorf("%w: winner %q is not a player", ErrInvalidSession, s.Winner)
	}
	switch s.Status {
	case StatusCompleted, StatusTimedOut:
		if s.Winner == "" && !s.IsDraw {
			return fmt.Errorf("%w: %s without outcome", ErrInvalidSession, s.Status)
		}
	case StatusAbandoned:
	default:
		if s.Winner != "" || s.IsDraw {
			return fmt.Errorf("%w: outcome set while %s", ErrInvalidSession, s.Status)
		}
	}
	if s.State != nil && s.State.Kind() != s.Kind {
		return fmt.Errorf("%w: %s state on %s session", ErrInvalidSession, s.State.Kind(), s.Kind)
	}
	return nil
}
