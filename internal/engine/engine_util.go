package engine

import (
	"time"

	"github.com/DoyleJ11/duel/internal/game"
)

// NewSession returns a waiting session between two players with a fresh
// board for kind, at version 1.
func NewSession(id string, kind game.Kind, players [2]string, now time.Time) (*game.Session, error) {
	v, err := game.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return &game.Session{
		ID:            id,
		Kind:          kind,
		Status:        game.StatusWaiting,
		Players:       players,
		TurnStartedAt: now,
		State:         v.NewState(players),
		Version:       1,
		CreatedAt:     now,
	}, nil
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
