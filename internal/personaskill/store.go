// Package personaskill implements the Persona-Skill Store (C8): per-
// (persona, skill) usage metrics and the auto-assignment rule that
// promotes a skill from Bound to AutoAssigned once a persona has
// demonstrated enough proficiency with it.
package personaskill

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Ownership describes how a binding between a persona and a skill came
// to exist.
type Ownership string

const (
	Bound        Ownership = "bound"
	AutoAssigned Ownership = "auto_assigned"
)

// maxLatencySamples bounds the per-binding latency history used to
// derive P50LatencyMS; older samples are dropped once the cap is hit.
const maxLatencySamples = 64

// Binding is a persona's relationship to a single skill, per spec §4.
type Binding struct {
	Persona      string
	SkillID      string
	Ownership    Ownership
	UsageCount   int
	SuccessCount int
	P50LatencyMS int64
	LastUsed     time.Time

	latencies []int64
}

// SuccessRate is success_count/usage_count, or 0 when the skill has
// never been used.
func (b *Binding) SuccessRate() float64 {
	if b.UsageCount == 0 {
		return 0
	}
	return float64(b.SuccessCount) / float64(b.UsageCount)
}

// AutoAssignConfig bounds check_auto_assignment's promotion rule.
type AutoAssignConfig struct {
	MinUsages            int
	ProficiencyThreshold float64
}

// ChronicleRecorder is the narrow slice of the chronicle (C11) that the
// Persona-Skill Store needs: a freeform note and the two sync targets
// sync_to_chronicle maintains. Implemented by internal/chronicle.
type ChronicleRecorder interface {
	Note(ctx context.Context, persona, message string) error
	SetSkillProficiency(ctx context.Context, persona, skillID string, successRate float64) error
	SetAutoAssignedSkills(ctx context.Context, persona string, skillIDs []string) error
}

// Store holds persona-skill bindings in memory, guarded by a mutex since
// record_execution is called from concurrent tool-call completions.
type Store struct {
	mu        sync.Mutex
	bindings  map[string]*Binding
	chronicle ChronicleRecorder
}

// New constructs an empty Store. chronicle may be nil, in which case
// CheckAutoAssignment and SyncToChronicle skip their chronicle writes.
func New(chronicle ChronicleRecorder) *Store {
	return &Store{
		bindings:  make(map[string]*Binding),
		chronicle: chronicle,
	}
}

func bindingKey(persona, skillID string) string {
	return persona + "\x00" + skillID
}

// Bind registers skillID as an explicitly Bound skill for persona, e.g.
// from persona configuration. It is a no-op if the binding already
// exists, so it never downgrades a binding that usage has since
// promoted to AutoAssigned.
func (s *Store) Bind(persona, skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bindingKey(persona, skillID)
	if _, ok := s.bindings[key]; ok {
		return
	}
	s.bindings[key] = &Binding{Persona: persona, SkillID: skillID, Ownership: Bound}
}

// RecordExecution upserts a binding (creating it as AutoAssigned if
// absent, matching the "matched skill id is an opaque hint" Open
// Question decision: a skill exercised without a prior explicit Bound
// binding is assumed auto-discovered), increments its counters, and
// recomputes its success rate and latency percentile.
func (s *Store) RecordExecution(ctx context.Context, persona, skillID string, success bool, durationMS *int64) (*Binding, error) {
	if persona == "" || skillID == "" {
		return nil, fmt.Errorf("personaskill: persona and skillID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey(persona, skillID)
	b, ok := s.bindings[key]
	if !ok {
		b = &Binding{Persona: persona, SkillID: skillID, Ownership: AutoAssigned}
		s.bindings[key] = b
	}

	b.UsageCount++
	if success {
		b.SuccessCount++
	}
	b.LastUsed = time.Now()
	if durationMS != nil {
		b.latencies = append(b.latencies, *durationMS)
		if len(b.latencies) > maxLatencySamples {
			b.latencies = b.latencies[len(b.latencies)-maxLatencySamples:]
		}
		b.P50LatencyMS = median(b.latencies)
	}

	cp := *b
	return &cp, nil
}

func median(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// CheckAutoAssignment promotes a binding to AutoAssigned once it has
// crossed config's usage and proficiency thresholds, emitting a
// chronicle note. Re-checking an already-AutoAssigned binding is a
// no-op, which is what makes the promotion idempotent per skill name
// within a persona.
func (s *Store) CheckAutoAssignment(ctx context.Context, persona, skillID string, cfg AutoAssignConfig) (bool, error) {
	s.mu.Lock()
	b, ok := s.bindings[bindingKey(persona, skillID)]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if b.Ownership == AutoAssigned {
		s.mu.Unlock()
		return false, nil
	}
	meetsUsage := b.UsageCount >= cfg.MinUsages
	meetsProficiency := b.SuccessRate() >= cfg.ProficiencyThreshold
	if !meetsUsage || !meetsProficiency {
		s.mu.Unlock()
		return false, nil
	}
	b.Ownership = AutoAssigned
	s.mu.Unlock()

	if s.chronicle == nil {
		return true, nil
	}
	msg := fmt.Sprintf("Skill '%s' auto-assigned through mastery", skillID)
	if err := s.chronicle.Note(ctx, persona, msg); err != nil {
		return true, err
	}
	return true, nil
}

// SyncToChronicle pushes every binding of persona with usage_count >= 3
// into the chronicle's skill_proficiency map, and refreshes the
// chronicle's auto_assigned_skills list to match the store.
func (s *Store) SyncToChronicle(ctx context.Context, persona string) error {
	if s.chronicle == nil {
		return nil
	}

	s.mu.Lock()
	type snapshot struct {
		skillID      string
		successRate  float64
		autoAssigned bool
	}
	var snaps []snapshot
	for _, b := range s.bindings {
		if b.Persona != persona || b.UsageCount < 3 {
			continue
		}
		snaps = append(snaps, snapshot{
			skillID:      b.SkillID,
			successRate:  b.SuccessRate(),
			autoAssigned: b.Ownership == AutoAssigned,
		})
	}
	s.mu.Unlock()

	var autoAssigned []string
	for _, sn := range snaps {
		if err := s.chronicle.SetSkillProficiency(ctx, persona, sn.skillID, sn.successRate); err != nil {
			return err
		}
		if sn.autoAssigned {
			autoAssigned = append(autoAssigned, sn.skillID)
		}
	}
	return s.chronicle.SetAutoAssignedSkills(ctx, persona, autoAssigned)
}

// Get returns a copy of the current binding, if any.
func (s *Store) Get(persona, skillID string) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[bindingKey(persona, skillID)]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

// ListForPersona returns every binding recorded for persona.
func (s *Store) ListForPersona(persona string) []*Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Binding
	for _, b := range s.bindings {
		if b.Persona == persona {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out
}
