// Package graphmem implements the Graph-RAG Memory component (C7):
// SQLite-backed turn/entity indexing, hybrid seed-and-expand retrieval,
// and named explicit memory.
package graphmem

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Turn is a single indexed conversation turn.
type Turn struct {
	ID        string
	SessionID string
	TurnIndex int
	Role      string
	Content   string
	CreatedAt time.Time
}

// Message is the indexing input: a turn not yet persisted.
type Message struct {
	TurnIndex int
	Role      string
	Content   string
}

// Store owns the SQLite-backed turn/entity/co-occurrence graph and the
// explicit memory table.
type Store struct {
	db        *sql.DB
	extractor Extractor
}

// Option configures a Store at construction.
type Option func(*Store)

// WithExtractor overrides the default entity extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Store) { s.extractor = e }
}

// Open creates or attaches to a SQLite-backed Store at path (":memory:"
// for an ephemeral store).
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("graphmem: open db: %w", err)
	}
	s := &Store{db: db, extractor: HeuristicExtractor{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(session_id, turn_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, turn_index)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS turn_entities (
			turn_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			relevance REAL NOT NULL DEFAULT 1.0,
			PRIMARY KEY (turn_id, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turn_entities_entity ON turn_entities(entity_id)`,
		`CREATE TABLE IF NOT EXISTS entity_cooccurrence (
			entity_a TEXT NOT NULL,
			entity_b TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_a, entity_b)
		)`,
		`CREATE TABLE IF NOT EXISTS explicit_memories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entities (
			memory_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			PRIMARY KEY (memory_id, entity_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("graphmem: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats reports row counts across the graph tables, for the CLI's
// "data stats" surface.
type Stats struct {
	Turns            int
	Entities         int
	TurnEntityEdges  int
	Cooccurrences    int
	ExplicitMemories int
}

// Stats counts rows in each table backing the graph (turns, entities,
// turn-entity edges, co-occurrence pairs, explicit memories).
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"turns", &st.Turns},
		{"entities", &st.Entities},
		{"turn_entities", &st.TurnEntityEdges},
		{"entity_cooccurrence", &st.Cooccurrences},
		{"explicit_memories", &st.ExplicitMemories},
	}
	for _, c := range counts {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table))
		if err := row.Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("graphmem: stats %s: %w", c.table, err)
		}
	}
	return st, nil
}

// Clear truncates every graph and explicit-memory table, for the CLI's
// "data clear" surface. It does not drop the tables themselves.
func (s *Store) Clear(ctx context.Context) error {
	tables := []string{
		"memory_entities", "explicit_memories",
		"entity_cooccurrence", "turn_entities", "entities", "turns",
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graphmem: clear: begin: %w", err)
	}
	defer tx.Rollback()
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return fmt.Errorf("graphmem: clear %s: %w", t, err)
		}
	}
	return tx.Commit()
}

// maxSeenTurnIndex returns the highest turn_index already indexed for a
// session, or -1 if none.
func (s *Store) maxSeenTurnIndex(ctx context.Context, sessionID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(turn_index) FROM turns WHERE session_id = ?`, sessionID).Scan(&max)
	if err != nil {
		return -1, err
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// NextTurnIndex returns the turn_index a caller should assign to the next
// message appended to sessionID, i.e. one past the highest index already
// indexed (0 for a session with no turns yet). Callers that accumulate
// conversation turns across multiple IndexSession calls use this to seed
// their running counter instead of assuming it starts at 0.
func (s *Store) NextTurnIndex(ctx context.Context, sessionID string) (int, error) {
	max, err := s.maxSeenTurnIndex(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// IndexSession indexes every message whose turn_index exceeds the
// session's high-water mark, per spec §4.7's indexing algorithm: extract
// entities, upsert them, insert the turn idempotently, link turn→entity,
// and bump pairwise co-occurrence counters.
func (s *Store) IndexSession(ctx context.Context, sessionID string, messages []Message) error {
	maxSeen, err := s.maxSeenTurnIndex(ctx, sessionID)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if msg.TurnIndex <= maxSeen {
			continue
		}
		if err := s.indexTurn(ctx, sessionID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) indexTurn(ctx context.Context, sessionID string, msg Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	turnID := uuid.NewString()
	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO turns (id, session_id, turn_index, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turnID, sessionID, msg.TurnIndex, msg.Role, msg.Content, now,
	)
	if err != nil {
		return fmt.Errorf("graphmem: insert turn: %w", err)
	}

	// Idempotent-by-id: if the turn already existed (race across callers)
	// re-resolve its id for the entity links below.
	var existingID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM turns WHERE session_id = ? AND turn_index = ?`, sessionID, msg.TurnIndex,
	).Scan(&existingID); err != nil {
		return fmt.Errorf("graphmem: resolve turn id: %w", err)
	}
	turnID = existingID

	names := s.extractor.ExtractEntities(msg.Content)
	entityIDs := make([]string, 0, len(names))
	for _, name := range names {
		id, err := upsertEntity(ctx, tx, name)
		if err != nil {
			return err
		}
		entityIDs = append(entityIDs, id)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO turn_entities (turn_id, entity_id, relevance) VALUES (?, ?, 1.0)`,
			turnID, id,
		); err != nil {
			return fmt.Errorf("graphmem: link turn entity: %w", err)
		}
	}

	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			a, b := entityIDs[i], entityIDs[j]
			if a > b {
				a, b = b, a
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entity_cooccurrence (entity_a, entity_b, count) VALUES (?, ?, 1)
				 ON CONFLICT(entity_a, entity_b) DO UPDATE SET count = count + 1`,
				a, b,
			); err != nil {
				return fmt.Errorf("graphmem: update co-occurrence: %w", err)
			}
		}
	}

	return tx.Commit()
}

func upsertEntity(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("graphmem: lookup entity: %w", err)
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO entities (id, name) VALUES (?, ?)`, id, name); err != nil {
		return "", fmt.Errorf("graphmem: insert entity: %w", err)
	}
	return id, nil
}
