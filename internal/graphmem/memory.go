package graphmem

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cratos-ai/cratos/internal/coreerr"
	"github.com/google/uuid"
)

// ExplicitMemory is a named, user-curated memory record, per spec §4.7.
type ExplicitMemory struct {
	ID          string
	Name        string
	Content     string
	Category    string
	AccessCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Save upserts an explicit memory by name, optionally linking it to
// entities extracted from its content.
func (s *Store) Save(ctx context.Context, name, content, category string) (*ExplicitMemory, error) {
	now := time.Now()
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM explicit_memories WHERE name = ?`, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO explicit_memories (id, name, content, category, access_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?)`,
			id, name, content, category, now, now,
		)
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE explicit_memories SET content = ?, category = ?, updated_at = ? WHERE id = ?`,
			content, category, now, id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("graphmem: save memory: %w", err)
	}

	if err := s.linkMemoryEntities(ctx, id, content); err != nil {
		return nil, err
	}

	return s.getMemory(ctx, id)
}

func (s *Store) linkMemoryEntities(ctx context.Context, memoryID, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entities WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}
	for _, name := range s.extractor.ExtractEntities(content) {
		entityID, err := upsertEntity(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_entities (memory_id, entity_id) VALUES (?, ?)`, memoryID, entityID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recall performs a LIKE-pattern search over name and content, ordered by
// access_count DESC, updated_at DESC, and increments the access counter
// of every returned record.
func (s *Store) Recall(ctx context.Context, pattern string, limit int) ([]ExplicitMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	like := "%" + pattern + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, category, access_count, created_at, updated_at
		FROM explicit_memories
		WHERE name LIKE ? OR content LIKE ?
		ORDER BY access_count DESC, updated_at DESC
		LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("graphmem: recall: %w", err)
	}
	defer rows.Close()

	var out []ExplicitMemory
	var ids []string
	for rows.Next() {
		var m ExplicitMemory
		if err := rows.Scan(&m.ID, &m.Name, &m.Content, &m.Category, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		if _, err := s.db.ExecContext(ctx, `UPDATE explicit_memories SET access_count = access_count + 1 WHERE id = ?`, id); err != nil {
			return nil, err
		}
		out[i].AccessCount++
	}
	return out, nil
}

// List returns explicit memories, optionally filtered by category.
func (s *Store) List(ctx context.Context, category string) ([]ExplicitMemory, error) {
	query := `SELECT id, name, content, category, access_count, created_at, updated_at FROM explicit_memories`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graphmem: list: %w", err)
	}
	defer rows.Close()

	var out []ExplicitMemory
	for rows.Next() {
		var m ExplicitMemory
		if err := rows.Scan(&m.ID, &m.Name, &m.Content, &m.Category, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update replaces an existing memory's content and/or category.
func (s *Store) Update(ctx context.Context, name, content, category string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE explicit_memories SET content = ?, category = ?, updated_at = ? WHERE name = ?`,
		content, category, time.Now(), name,
	)
	if err != nil {
		return fmt.Errorf("graphmem: update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return coreerr.NotFound("memory " + name)
	}
	return nil
}

// Delete removes a named memory and its entity links.
func (s *Store) Delete(ctx context.Context, name string) error {
	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM explicit_memories WHERE name = ?`, name).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return coreerr.NotFound("memory " + name)
		}
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_entities WHERE memory_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM explicit_memories WHERE id = ?`, id)
	return err
}

func (s *Store) getMemory(ctx context.Context, id string) (*ExplicitMemory, error) {
	var m ExplicitMemory
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, category, access_count, created_at, updated_at FROM explicit_memories WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Content, &m.Category, &m.AccessCount, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
