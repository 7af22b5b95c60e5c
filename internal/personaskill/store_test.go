package personaskill

import (
	"context"
	"testing"
)

type fakeChronicle struct {
	notes        []string
	proficiency  map[string]float64
	autoAssigned []string
}

func newFakeChronicle() *fakeChronicle {
	return &fakeChronicle{proficiency: make(map[string]float64)}
}

func (f *fakeChronicle) Note(ctx context.Context, persona, message string) error {
	f.notes = append(f.notes, message)
	return nil
}

func (f *fakeChronicle) SetSkillProficiency(ctx context.Context, persona, skillID string, successRate float64) error {
	f.proficiency[skillID] = successRate
	return nil
}

func (f *fakeChronicle) SetAutoAssignedSkills(ctx context.Context, persona string, skillIDs []string) error {
	f.autoAssigned = skillIDs
	return nil
}

func durPtr(ms int64) *int64 { return &ms }

func TestRecordExecutionCreatesAutoAssignedBindingByDefault(t *testing.T) {
	s := New(nil)
	b, err := s.RecordExecution(context.Background(), "researcher", "web-search", true, durPtr(100))
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if b.Ownership != AutoAssigned {
		t.Fatalf("expected a freshly seen binding to default to AutoAssigned, got %v", b.Ownership)
	}
	if b.UsageCount != 1 || b.SuccessCount != 1 {
		t.Fatalf("expected usage_count=1 success_count=1, got %+v", b)
	}
}

func TestRecordExecutionTracksSuccessRateAndLatency(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	if _, err := s.RecordExecution(ctx, "researcher", "web-search", true, durPtr(100)); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if _, err := s.RecordExecution(ctx, "researcher", "web-search", false, durPtr(200)); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	b, ok := s.Get("researcher", "web-search")
	if !ok {
		t.Fatal("expected binding to exist")
	}
	if b.SuccessRate() != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", b.SuccessRate())
	}
	if b.P50LatencyMS != 150 {
		t.Fatalf("expected median latency 150, got %d", b.P50LatencyMS)
	}
}

func TestCheckAutoAssignmentPromotesOnceThresholdsAreMet(t *testing.T) {
	chron := newFakeChronicle()
	s := New(chron)
	ctx := context.Background()
	s.Bind("researcher", "web-search")

	cfg := AutoAssignConfig{MinUsages: 3, ProficiencyThreshold: 0.8}
	for i := 0; i < 3; i++ {
		if _, err := s.RecordExecution(ctx, "researcher", "web-search", true, nil); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	promoted, err := s.CheckAutoAssignment(ctx, "researcher", "web-search", cfg)
	if err != nil {
		t.Fatalf("CheckAutoAssignment: %v", err)
	}
	if !promoted {
		t.Fatal("expected promotion once usage and proficiency thresholds are met")
	}
	if len(chron.notes) != 1 {
		t.Fatalf("expected exactly one chronicle note, got %v", chron.notes)
	}
}

func TestCheckAutoAssignmentIsIdempotentOncePromoted(t *testing.T) {
	chron := newFakeChronicle()
	s := New(chron)
	ctx := context.Background()
	s.Bind("researcher", "web-search")

	cfg := AutoAssignConfig{MinUsages: 1, ProficiencyThreshold: 0}
	if _, err := s.RecordExecution(ctx, "researcher", "web-search", true, nil); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if _, err := s.CheckAutoAssignment(ctx, "researcher", "web-search", cfg); err != nil {
		t.Fatalf("CheckAutoAssignment: %v", err)
	}
	if len(chron.notes) != 1 {
		t.Fatalf("expected exactly one note from the first promotion, got %v", chron.notes)
	}

	// A second check against an already-AutoAssigned binding must not
	// emit another chronicle note.
	if _, err := s.CheckAutoAssignment(ctx, "researcher", "web-search", cfg); err != nil {
		t.Fatalf("CheckAutoAssignment: %v", err)
	}
	if len(chron.notes) != 1 {
		t.Fatalf("expected no additional note once already AutoAssigned, got %v", chron.notes)
	}
}

func TestCheckAutoAssignmentDoesNothingBelowThresholds(t *testing.T) {
	s := New(newFakeChronicle())
	ctx := context.Background()
	s.Bind("researcher", "web-search")
	if _, err := s.RecordExecution(ctx, "researcher", "web-search", false, nil); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	promoted, err := s.CheckAutoAssignment(ctx, "researcher", "web-search", AutoAssignConfig{MinUsages: 5, ProficiencyThreshold: 0.9})
	if err != nil {
		t.Fatalf("CheckAutoAssignment: %v", err)
	}
	if promoted {
		t.Fatal("expected no promotion below thresholds")
	}
}

func TestSyncToChronicleOnlyIncludesSkillsUsedAtLeastThreeTimes(t *testing.T) {
	chron := newFakeChronicle()
	s := New(chron)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.RecordExecution(ctx, "researcher", "web-search", true, nil); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}
	if _, err := s.RecordExecution(ctx, "researcher", "calculator", true, nil); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	if err := s.SyncToChronicle(ctx, "researcher"); err != nil {
		t.Fatalf("SyncToChronicle: %v", err)
	}
	if _, ok := chron.proficiency["web-search"]; !ok {
		t.Fatal("expected web-search proficiency to sync (usage_count=3)")
	}
	if _, ok := chron.proficiency["calculator"]; ok {
		t.Fatal("expected calculator to be excluded (usage_count=1)")
	}
}

func TestSyncToChronicleReflectsAutoAssignedSkills(t *testing.T) {
	chron := newFakeChronicle()
	s := New(chron)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.RecordExecution(ctx, "researcher", "web-search", true, nil); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}
	if err := s.SyncToChronicle(ctx, "researcher"); err != nil {
		t.Fatalf("SyncToChronicle: %v", err)
	}
	if len(chron.autoAssigned) != 1 || chron.autoAssigned[0] != "web-search" {
		t.Fatalf("expected auto_assigned_skills=[web-search], got %v", chron.autoAssigned)
	}
}

func TestRecordExecutionRejectsEmptyIdentifiers(t *testing.T) {
	s := New(nil)
	if _, err := s.RecordExecution(context.Background(), "", "web-search", true, nil); err == nil {
		t.Fatal("expected an error for an empty persona")
	}
}
