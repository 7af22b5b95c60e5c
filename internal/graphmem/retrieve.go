package graphmem

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// Weights configures the hybrid scoring function in spec §4.7 step 4.
type Weights struct {
	Embedding float64
	Proximity float64
	Overlap   float64
}

// DefaultWeights lets embedding similarity dominate ranking, with the
// graph signals acting as a tie-breaker.
var DefaultWeights = Weights{Embedding: 0.6, Proximity: 0.15, Overlap: 0.25}

// seedScore is the floor assigned to entity-linked seeds with no vector
// score, deliberately below typical embedding similarities so graph-only
// matches rank behind vector hits, per spec §4.7 step 2.
const seedScore = 0.3

// VectorSearch returns the top-K turn ids most similar to query, with an
// embedding similarity score in [0, 1]. Wiring one in is optional; when
// nil, retrieval falls back to pure entity-linked seeding.
type VectorSearch func(ctx context.Context, query string, topK int) ([]ScoredTurn, error)

// ScoredTurn pairs a turn id with an externally computed score.
type ScoredTurn struct {
	TurnID string
	Score  float64
}

// RetrieveOptions configures a single retrieve call.
type RetrieveOptions struct {
	MaxTurns     int
	MaxTokens    int
	Weights      Weights
	VectorSearch VectorSearch
	VectorTopK   int
}

// Retrieve implements spec §4.7's retrieval algorithm: extract query
// entities, gather seeds (vector hits and/or entity-linked turns), expand
// one BFS hop through shared entities, score hybridly, and greedily
// select within the turn/token budget before a final chronological sort.
func (s *Store) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]Turn, error) {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 20
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	topK := opts.VectorTopK
	if topK <= 0 {
		topK = 20
	}

	queryEntities := s.extractor.ExtractEntities(query)

	seeds := make(map[string]*candidate)

	if opts.VectorSearch != nil {
		hits, err := opts.VectorSearch(ctx, query, topK)
		if err != nil {
			return nil, fmt.Errorf("graphmem: vector search: %w", err)
		}
		for _, hit := range hits {
			turn, err := s.getTurn(ctx, hit.TurnID)
			if err != nil {
				continue
			}
			seeds[turn.ID] = &candidate{turn: *turn, seedTurnID: turn.ID, embScore: hit.Score}
		}
	}

	entityIDs, err := s.entityIDsByName(ctx, queryEntities)
	if err != nil {
		return nil, err
	}
	for _, entityID := range entityIDs {
		turns, err := s.turnsLinkedToEntity(ctx, entityID)
		if err != nil {
			return nil, err
		}
		for _, turn := range turns {
			if _, ok := seeds[turn.ID]; !ok {
				seeds[turn.ID] = &candidate{turn: turn, seedTurnID: turn.ID, embScore: seedScore}
			}
		}
	}

	// BFS 1-hop: from every seed turn's entities, gather their other turns.
	expanded := make(map[string]*candidate)
	for id, c := range seeds {
		expanded[id] = c
	}
	for seedID, seed := range seeds {
		linkedEntities, err := s.entitiesForTurn(ctx, seedID)
		if err != nil {
			return nil, err
		}
		for _, entityID := range linkedEntities {
			turns, err := s.turnsLinkedToEntity(ctx, entityID)
			if err != nil {
				return nil, err
			}
			for _, turn := range turns {
				if _, ok := expanded[turn.ID]; !ok {
					expanded[turn.ID] = &candidate{turn: turn, seedTurnID: seed.seedTurnID, embScore: 0}
				}
			}
		}
	}

	type scored struct {
		turn  Turn
		score float64
	}
	scoredCandidates := make([]scored, 0, len(expanded))
	for _, c := range expanded {
		turnEntities, err := s.entityNamesForTurn(ctx, c.turn.ID)
		if err != nil {
			return nil, err
		}
		overlap := jaccard(queryEntities, turnEntities)
		proximity := s.proximity(expanded, c)
		score := opts.Weights.Embedding*c.embScore +
			opts.Weights.Proximity*proximity +
			opts.Weights.Overlap*overlap
		scoredCandidates = append(scoredCandidates, scored{turn: c.turn, score: score})
	}

	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].score > scoredCandidates[j].score })

	selected := make([]Turn, 0, opts.MaxTurns)
	tokens := 0
	for _, c := range scoredCandidates {
		if len(selected) >= opts.MaxTurns {
			break
		}
		turnTokens := estimateTokens(c.turn.Content)
		if opts.MaxTokens > 0 && len(selected) > 0 && tokens+turnTokens > opts.MaxTokens {
			break
		}
		selected = append(selected, c.turn)
		tokens += turnTokens
	}

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].SessionID != selected[j].SessionID {
			return selected[i].SessionID < selected[j].SessionID
		}
		return selected[i].TurnIndex < selected[j].TurnIndex
	})

	return selected, nil
}

// proximity is 0 across sessions and decays with the seed/candidate
// turn_index delta within a session, per spec §4.7 step 4.
func (s *Store) proximity(all map[string]*candidate, c *candidate) float64 {
	seed, ok := all[c.seedTurnID]
	if !ok || seed.turn.SessionID != c.turn.SessionID {
		return 0
	}
	delta := seed.turn.TurnIndex - c.turn.TurnIndex
	if delta < 0 {
		delta = -delta
	}
	return 1.0 / (1.0 + float64(delta))
}

type candidate struct {
	turn       Turn
	seedTurnID string
	embScore   float64
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA)
	for v := range setB {
		if !setA[v] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// estimateTokens uses the ~4-characters-per-token heuristic also applied
// for conversation compaction budgets elsewhere in this module.
func estimateTokens(content string) int {
	return int(math.Ceil(float64(len(content)) / 4.0))
}

func (s *Store) getTurn(ctx context.Context, id string) (*Turn, error) {
	var t Turn
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, turn_index, role, content, created_at FROM turns WHERE id = ?`, id,
	).Scan(&t.ID, &t.SessionID, &t.TurnIndex, &t.Role, &t.Content, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) entityIDsByName(ctx context.Context, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		var id string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) turnsLinkedToEntity(ctx context.Context, entityID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.session_id, t.turn_index, t.role, t.content, t.created_at
		FROM turns t
		JOIN turn_entities te ON te.turn_id = t.id
		WHERE te.entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.TurnIndex, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) entitiesForTurn(ctx context.Context, turnID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id FROM turn_entities WHERE turn_id = ?`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) entityNamesForTurn(ctx context.Context, turnID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.name FROM entities e
		JOIN turn_entities te ON te.entity_id = e.id
		WHERE te.turn_id = ?`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
