package chronicle

import (
	"context"
	"testing"

	"github.com/cratos-ai/cratos/internal/orchestrator"
	"github.com/cratos-ai/cratos/internal/personaskill"
)

func TestHooksRunRecordsCleanCompletionJudgment(t *testing.T) {
	s := openTestStore(t)
	hooks := NewHooks(s, nil, nil, nil)

	hooks.Run(context.Background(), orchestrator.Outcome{
		ExecutionID:   "e1",
		Persona:       "helper",
		ResponseText:  "task finished successfully",
		Status:        orchestrator.StatusCompleted,
		TaskCompleted: true,
	})

	summary, err := s.Get(context.Background(), "helper")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !summary.HasJudgments || summary.AverageRating != cleanJudgmentScore {
		t.Fatalf("expected a clean judgment of %v, got has=%v avg=%v", cleanJudgmentScore, summary.HasJudgments, summary.AverageRating)
	}
	if summary.EntryCount != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", summary.EntryCount)
	}
}

func TestHooksRunRecordsViolationJudgmentForEmptyResponse(t *testing.T) {
	s := openTestStore(t)
	hooks := NewHooks(s, nil, nil, nil)

	hooks.Run(context.Background(), orchestrator.Outcome{
		ExecutionID:   "e2",
		Persona:       "helper",
		ResponseText:  "",
		Status:        orchestrator.StatusCompleted,
		TaskCompleted: true,
	})

	summary, err := s.Get(context.Background(), "helper")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if summary.AverageRating != violationJudgmentScore {
		t.Fatalf("expected a violation judgment of %v, got %v", violationJudgmentScore, summary.AverageRating)
	}
}

func TestHooksRunSyncsSkillProficiencyWhenSkillsUsed(t *testing.T) {
	s := openTestStore(t)
	skills := personaskill.New(s)
	durationMS := int64(50)
	for i := 0; i < 3; i++ {
		if _, err := skills.RecordExecution(context.Background(), "helper", "deploy", true, &durationMS); err != nil {
			t.Fatalf("record execution: %v", err)
		}
	}

	hooks := NewHooks(s, nil, skills, nil)
	hooks.Run(context.Background(), orchestrator.Outcome{
		ExecutionID:   "e3",
		Persona:       "helper",
		ResponseText:  "used the deploy skill",
		TaskCompleted: true,
		SkillsUsed:    []string{"deploy"},
	})

	summary, err := s.Get(context.Background(), "helper")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if summary.SkillProficiency["deploy"] != 1.0 {
		t.Fatalf("expected deploy proficiency synced to 1.0, got %v", summary.SkillProficiency["deploy"])
	}
}
