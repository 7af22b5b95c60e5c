package chronicle

import (
	"context"
	"strings"

	"github.com/cratos-ai/cratos/internal/observability"
	"github.com/cratos-ai/cratos/internal/orchestrator"
	"github.com/cratos-ai/cratos/internal/personaskill"
)

// entrySummaryLimit bounds how much of a response's first line is
// copied into a chronicle entry, per spec §4.11 step 2's "first line,
// truncated".
const entrySummaryLimit = 160

// Hooks implements orchestrator.PostExecutionHooks (C11) against a
// chronicle Store: law enforcement, chronicle logging, auto-promotion
// (all inside Store.Append/RecordJudgment), and skill-proficiency sync
// via C8.
type Hooks struct {
	Store  *Store
	LawSet []Law
	Skills *personaskill.Store
	Logger *observability.Logger
}

// NewHooks constructs a Hooks with spec-default law enforcement. Skills
// and Logger may be left nil; Run degrades by skipping the skill sync
// and warning logs respectively.
func NewHooks(store *Store, lawSet []Law, skills *personaskill.Store, logger *observability.Logger) *Hooks {
	if lawSet == nil {
		lawSet = DefaultLawSet
	}
	return &Hooks{Store: store, LawSet: lawSet, Skills: skills, Logger: logger}
}

// Run implements orchestrator.PostExecutionHooks. It never returns an
// error to the driver; every failure here is logged and swallowed, per
// spec §4.11's "failures are logged, never propagated" rule.
func (h *Hooks) Run(ctx context.Context, outcome orchestrator.Outcome) {
	persona := outcome.Persona
	if persona == "" {
		persona = "default"
	}

	violations, score, recordJudgment := enforce(h.LawSet, outcome.ResponseText, outcome.TaskCompleted)
	if recordJudgment {
		note := "clean completion"
		if len(violations) > 0 {
			note = strings.Join(violations, "; ")
		}
		if err := h.Store.RecordJudgment(ctx, persona, score, note); err != nil {
			h.warn(ctx, "chronicle judgment recording failed", "execution_id", outcome.ExecutionID, "error", err.Error())
		}
	}

	if _, err := h.Store.Append(ctx, persona, "execution", summarize(outcome.ResponseText)); err != nil {
		h.warn(ctx, "chronicle entry append failed", "execution_id", outcome.ExecutionID, "error", err.Error())
	}

	if h.Skills != nil && len(outcome.SkillsUsed) > 0 {
		if err := h.Skills.SyncToChronicle(ctx, persona); err != nil {
			h.warn(ctx, "skill-proficiency sync failed", "persona", persona, "error", err.Error())
		}
	}
}

func (h *Hooks) warn(ctx context.Context, msg string, args ...any) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(ctx, msg, args...)
}

// summarize takes the first line of text, truncated to entrySummaryLimit.
func summarize(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > entrySummaryLimit {
		return text[:entrySummaryLimit] + "..."
	}
	return text
}
