// Package storage persists finished sessions for history and stats.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/duel/internal/game"
)

var ErrNotFinished = errors.New("session is not finished")

// SessionRecord is one finished session. Snapshot holds the full session as
// sent to clients.
type SessionRecord struct {
	ID          string `gorm:"primaryKey"`
	Kind        string `gorm:"index"`
	Status      string
	PlayerA     string `gorm:"index"`
	PlayerB     string `gorm:"index"`
	Winner      string
	IsDraw      bool
	ForfeitedBy string
	Version     int64
	Snapshot    []byte
	CreatedAt   time.Time
	FinishedAt  time.Time `gorm:"index"`
}

type Stats struct {
	Played        int `json:"played"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	Draws         int `json:"draws"`
	CurrentStreak int `json:"currentStreak"`
	BestStreak    int `json:"bestStreak"`
}

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema. postgres:// URLs and
// key=value DSNs go to Postgres; anything else is a SQLite file or URI.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SessionFinished records a terminal session. Recording the same session
// again overwrites the earlier record.
func (s *Store) SessionFinished(ctx context.Context, sess *game.Session, at time.Time) error {
	if !sess.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, sess.ID, sess.Status)
	}
	snap, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	rec := SessionRecord{
		ID:          sess.ID,
		Kind:        string(sess.Kind),
		Status:      string(sess.Status),
		PlayerA:     sess.Players[0],
		PlayerB:     sess.Players[1],
		Winner:      sess.Winner,
		IsDraw:      sess.IsDraw,
		ForfeitedBy: sess.ForfeitedBy,
		Version:     sess.Version,
		Snapshot:    snap,
		CreatedAt:   sess.CreatedAt,
		FinishedAt:  at,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) forPlayer(ctx context.Context, player string, kind game.Kind) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("player_a = ? OR player_b = ?", player, player)
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	return q
}

// History returns one page of player's finished sessions, newest first.
// nextPage is zero on the last page.
func (s *Store) History(ctx context.Context, player string, kind game.Kind, page, pageSize int) ([]*game.Session, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var recs []SessionRecord
	err := s.forPlayer(ctx, player, kind).
		Order("finished_at DESC").Order("id DESC").
		Limit(pageSize + 1).Offset((page - 1) * pageSize).
		Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("load history: %w", err)
	}

	next := 0
	if len(recs) > pageSize {
		recs = recs[:pageSize]
		next = page + 1
	}
	out := make([]*game.Session, 0, len(recs))
	for _, r := range recs {
		var sess game.Session
		if err := json.Unmarshal(r.Snapshot, &sess); err != nil {
			return nil, 0, fmt.Errorf("decode session %s: %w", r.ID, err)
		}
		out = append(out, &sess)
	}
	return out, next, nil
}

// Stats summarises player's record. Sessions abandoned before they started
// have no result and are not counted.
func (s *Store) Stats(ctx context.Context, player string, kind game.Kind) (Stats, error) {
	var recs []SessionRecord
	err := s.forPlayer(ctx, player, kind).
		Select("winner", "is_draw", "finished_at", "id").
		Order("finished_at ASC").Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return Stats{}, fmt.Errorf("load stats: %w", err)
	}

	var st Stats
	run := 0
	for _, r := range recs {
		switch {
		case r.IsDraw:
			st.Draws++
			run = 0
		case r.Winner == player:
			st.Wins++
			run++
			st.BestStreak = max(st.BestStreak, run)
		case r.Winner != "":
			st.Losses++
			run = 0
		default:
			continue
		}
		st.Played++
	}
	st.CurrentStreak = run
	return st, nil
}
