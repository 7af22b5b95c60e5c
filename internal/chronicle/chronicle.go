// Package chronicle implements the Post-Execution Hooks component (C11):
// an append-only per-persona activity ledger with law enforcement,
// judgment recording, and level promotion, backed by SQLite the same way
// internal/graphmem persists its turn/entity graph.
package chronicle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is a single append-only ledger line, per spec §3's Chronicle
// entry shape.
type Entry struct {
	ID        string
	Persona   string
	Category  string
	Text      string
	CreatedAt time.Time
}

// Judgment is a scored review of a persona's response, out of 5.0.
type Judgment struct {
	ID        string
	Persona   string
	Score     float64
	Note      string
	CreatedAt time.Time
}

// Summary is a snapshot of a persona's chronicle state, per spec §3.
type Summary struct {
	Persona            string
	Level              int
	EntryCount         int
	AverageRating      float64
	HasJudgments       bool
	SkillProficiency   map[string]float64
	AutoAssignedSkills []string
}

// MaxLevel is the cap spec §4.11/§9 Open Question 13 places on promotion.
const MaxLevel = 10

// promotionPenaltyFloor is the rating below which a single judgment blocks
// promotion outright regardless of the running average, per DESIGN.md's
// Open Question 4 decision.
const promotionPenaltyFloor = 2.0

// Store owns the SQLite-backed chronicle ledger for every persona.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a SQLite-backed Store at path (":memory:"
// for an ephemeral store).
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chronicle: open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chronicles (
			persona TEXT PRIMARY KEY,
			level INTEGER NOT NULL DEFAULT 1,
			skill_proficiency TEXT NOT NULL DEFAULT '{}',
			auto_assigned_skills TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS chronicle_entries (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL,
			category TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chronicle_entries_persona ON chronicle_entries(persona)`,
		`CREATE TABLE IF NOT EXISTS chronicle_judgments (
			id TEXT PRIMARY KEY,
			persona TEXT NOT NULL,
			score REAL NOT NULL,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chronicle_judgments_persona ON chronicle_judgments(persona)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("chronicle: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensurePersona auto-creates a chronicle row at level 1 if persona has
// never been seen before, per spec §4.11's "auto-create the chronicle if
// absent".
func (s *Store) ensurePersona(ctx context.Context, persona string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO chronicles (persona, level) VALUES (?, 1)
		ON CONFLICT(persona) DO NOTHING`, persona)
	return err
}

// Append writes a new ledger entry for persona, auto-creating its
// chronicle row if this is its first appearance, then runs the
// auto-promotion check.
func (s *Store) Append(ctx context.Context, persona, category, text string) (*Entry, error) {
	if err := s.ensurePersona(ctx, persona); err != nil {
		return nil, err
	}
	entry := &Entry{ID: uuid.NewString(), Persona: persona, Category: category, Text: text, CreatedAt: time.Now()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO chronicle_entries (id, persona, category, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Persona, entry.Category, entry.Text, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("chronicle: append: %w", err)
	}
	if err := s.checkAutoPromotion(ctx, persona); err != nil {
		return entry, err
	}
	return entry, nil
}

// RecordJudgment scores a persona's response, per spec §4.11 step 1.
func (s *Store) RecordJudgment(ctx context.Context, persona string, score float64, note string) error {
	if err := s.ensurePersona(ctx, persona); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO chronicle_judgments (id, persona, score, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), persona, score, note, time.Now())
	if err != nil {
		return fmt.Errorf("chronicle: record judgment: %w", err)
	}
	return s.checkAutoPromotion(ctx, persona)
}

// Note implements personaskill.ChronicleRecorder: a freeform ledger entry
// in the "note" category.
func (s *Store) Note(ctx context.Context, persona, message string) error {
	_, err := s.Append(ctx, persona, "note", message)
	return err
}

// SetSkillProficiency implements personaskill.ChronicleRecorder, per spec
// §4.8's sync_to_chronicle contract.
func (s *Store) SetSkillProficiency(ctx context.Context, persona, skillID string, successRate float64) error {
	if err := s.ensurePersona(ctx, persona); err != nil {
		return err
	}
	proficiency, err := s.loadJSONMap(ctx, persona, "skill_proficiency")
	if err != nil {
		return err
	}
	proficiency[skillID] = successRate
	return s.storeJSONColumn(ctx, persona, "skill_proficiency", proficiency)
}

// SetAutoAssignedSkills implements personaskill.ChronicleRecorder.
func (s *Store) SetAutoAssignedSkills(ctx context.Context, persona string, skillIDs []string) error {
	if err := s.ensurePersona(ctx, persona); err != nil {
		return err
	}
	return s.storeJSONColumn(ctx, persona, "auto_assigned_skills", skillIDs)
}

func (s *Store) loadJSONMap(ctx context.Context, persona, column string) (map[string]float64, error) {
	var raw string
	query := fmt.Sprintf(`SELECT %s FROM chronicles WHERE persona = ?`, column)
	if err := s.db.QueryRowContext(ctx, query, persona).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return make(map[string]float64), nil
		}
		return nil, fmt.Errorf("chronicle: load %s: %w", column, err)
	}
	out := make(map[string]float64)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("chronicle: decode %s: %w", column, err)
		}
	}
	return out, nil
}

func (s *Store) storeJSONColumn(ctx context.Context, persona, column string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("chronicle: encode %s: %w", column, err)
	}
	query := fmt.Sprintf(`UPDATE chronicles SET %s = ? WHERE persona = ?`, column)
	_, err = s.db.ExecContext(ctx, query, string(encoded), persona)
	return err
}

// Get returns a persona's current chronicle summary.
func (s *Store) Get(ctx context.Context, persona string) (*Summary, error) {
	var level int
	var proficiencyRaw, autoAssignedRaw string
	err := s.db.QueryRowContext(ctx, `SELECT level, skill_proficiency, auto_assigned_skills FROM chronicles WHERE persona = ?`, persona).
		Scan(&level, &proficiencyRaw, &autoAssignedRaw)
	if err == sql.ErrNoRows {
		return &Summary{Persona: persona, Level: 1, SkillProficiency: map[string]float64{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chronicle: get: %w", err)
	}

	var entryCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chronicle_entries WHERE persona = ?`, persona).Scan(&entryCount); err != nil {
		return nil, fmt.Errorf("chronicle: count entries: %w", err)
	}

	avg, hasJudgments, err := s.averageRating(ctx, persona)
	if err != nil {
		return nil, err
	}

	proficiency := make(map[string]float64)
	if proficiencyRaw != "" {
		_ = json.Unmarshal([]byte(proficiencyRaw), &proficiency)
	}
	var autoAssigned []string
	if autoAssignedRaw != "" {
		_ = json.Unmarshal([]byte(autoAssignedRaw), &autoAssigned)
	}

	return &Summary{
		Persona:            persona,
		Level:              level,
		EntryCount:         entryCount,
		AverageRating:      avg,
		HasJudgments:       hasJudgments,
		SkillProficiency:   proficiency,
		AutoAssignedSkills: autoAssigned,
	}, nil
}

func (s *Store) averageRating(ctx context.Context, persona string) (float64, bool, error) {
	var count int
	var sum sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(score) FROM chronicle_judgments WHERE persona = ?`, persona).Scan(&count, &sum)
	if err != nil {
		return 0, false, fmt.Errorf("chronicle: average rating: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return sum.Float64 / float64(count), true, nil
}

func (s *Store) minRating(ctx context.Context, persona string) (float64, bool, error) {
	var min sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(score) FROM chronicle_judgments WHERE persona = ?`, persona).Scan(&min); err != nil {
		return 0, false, fmt.Errorf("chronicle: min rating: %w", err)
	}
	return min.Float64, min.Valid, nil
}

// checkAutoPromotion implements spec §4.11 step 3 / §9 Open Question 13:
// promote once `len(log) >= (level+1)*5` and (`avg rating >= 3.5` or no
// judgments yet), unless any single judgment fell below the penalty
// floor. Promotion is idempotent per qualifying state: a level only
// advances once per Append/RecordJudgment call, never loops ahead.
func (s *Store) checkAutoPromotion(ctx context.Context, persona string) error {
	summary, err := s.Get(ctx, persona)
	if err != nil {
		return err
	}
	if summary.Level >= MaxLevel {
		return nil
	}
	required := (summary.Level + 1) * 5
	if summary.EntryCount < required {
		return nil
	}
	if summary.HasJudgments && summary.AverageRating < 3.5 {
		return nil
	}
	lowest, hasJudgment, err := s.minRating(ctx, persona)
	if err != nil {
		return err
	}
	if hasJudgment && lowest < promotionPenaltyFloor {
		return nil
	}

	newLevel := summary.Level + 1
	if _, err := s.db.ExecContext(ctx, `UPDATE chronicles SET level = ? WHERE persona = ?`, newLevel, persona); err != nil {
		return fmt.Errorf("chronicle: promote: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chronicle_entries (id, persona, category, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), persona, "promotion",
		fmt.Sprintf("promoted to level %d under the core directive set", newLevel), time.Now())
	return err
}
