package historydb

import (
	"errors"
	"strings"
	"time"

	"promptbridge/internal/bridge"
	dbmodel "promptbridge/internal/db"

	"gorm.io/gorm"
)

// SessionSummary is one recorded session, newest first in listings.
type SessionSummary struct {
	RunID       string
	Command     string
	RiskMode    string
	ExitReason  string
	ExitCode    int
	PromptCount int
	Heartbeats  int
	LogPath     string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Event is one recorded prompt resolution.
type Event struct {
	Kind     string
	Text     string
	Source   string
	Response string
	At       time.Time
}

type Store struct {
	db *gorm.DB
}

// NewStore wraps an open DB. Caller owns the connection lifetime.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

// RecordSession persists a completed bridged run and its prompt events.
func (s *Store) RecordSession(res *bridge.Result, command, cwd, riskMode string, startedAt, completedAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	if res == nil {
		return errors.New("result is required")
	}
	runID := strings.TrimSpace(res.RunID)
	if runID == "" {
		return errors.New("run id is required")
	}

	row := dbmodel.Session{
		RunID:       runID,
		Command:     command,
		Cwd:         cwd,
		RiskMode:    riskMode,
		ExitReason:  string(res.Exit.Reason),
		ExitCode:    res.Exit.Code,
		PID:         res.PID,
		Heartbeats:  res.Heartbeats,
		PromptCount: len(res.Events),
		LogPath:     res.LogPath,
		Transcript:  res.Transcript,
		StartedAt:   startedAt.UTC().Unix(),
		CompletedAt: completedAt.UTC().Unix(),
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, evt := range res.Events {
			rec := dbmodel.PromptEvent{
				RunID:     runID,
				Kind:      string(evt.Kind),
				Text:      evt.Text,
				Source:    string(evt.Source),
				Response:  evt.Response,
				CreatedAt: evt.At.UTC().Unix(),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent lists the most recently completed sessions.
func (s *Store) Recent(limit int) ([]SessionSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows := make([]dbmodel.Session, 0, limit)
	if err := s.db.Order("completed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, SessionSummary{
			RunID:       row.RunID,
			Command:     row.Command,
			RiskMode:    row.RiskMode,
			ExitReason:  row.ExitReason,
			ExitCode:    row.ExitCode,
			PromptCount: row.PromptCount,
			Heartbeats:  row.Heartbeats,
			LogPath:     row.LogPath,
			StartedAt:   time.Unix(row.StartedAt, 0).UTC(),
			CompletedAt: time.Unix(row.CompletedAt, 0).UTC(),
		})
	}
	return out, nil
}

// Events lists the prompt events of one session in resolution order.
func (s *Store) Events(runID string) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	rows := make([]dbmodel.PromptEvent, 0, 8)
	if err := s.db.Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, Event{
			Kind:     row.Kind,
			Text:     row.Text,
			Source:   row.Source,
			Response: row.Response,
			At:       time.Unix(row.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}
