package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cratos-ai/cratos/internal/approval"
	"github.com/cratos-ai/cratos/internal/eventbus"
	"github.com/cratos-ai/cratos/internal/graphmem"
	"github.com/cratos-ai/cratos/internal/observability"
	"github.com/cratos-ai/cratos/internal/personaskill"
	"github.com/cratos-ai/cratos/internal/providers"
	"github.com/cratos-ai/cratos/internal/sessions"
	"github.com/cratos-ai/cratos/internal/tools"
	"github.com/cratos-ai/cratos/internal/toolpolicy"
	"github.com/cratos-ai/cratos/pkg/models"
	"github.com/google/uuid"
)

// Config bounds a Driver's behaviour, per spec §4.10/§5.
type Config struct {
	Model               string
	System              string
	MaxIterations       int
	MaxTurns            int
	MaxTokens           int
	RetrievalWeights    graphmem.Weights
	ApprovalTimeout     time.Duration
	QueueSoftCap        int
	CompletionMaxTokens int
	AutoAssign          personaskill.AutoAssignConfig
}

// DefaultConfig returns sane defaults for every Config field left zero.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       DefaultMaxIterations,
		MaxTurns:            20,
		MaxTokens:           4000,
		RetrievalWeights:    graphmem.DefaultWeights,
		ApprovalTimeout:     approval.DefaultTimeout,
		QueueSoftCap:        sessions.DefaultQueueSoftCap,
		CompletionMaxTokens: 1024,
		AutoAssign:          personaskill.AutoAssignConfig{MinUsages: 5, ProficiencyThreshold: 0.8},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations > 0 {
		d.MaxIterations = c.MaxIterations
	}
	if c.MaxTurns > 0 {
		d.MaxTurns = c.MaxTurns
	}
	if c.MaxTokens > 0 {
		d.MaxTokens = c.MaxTokens
	}
	if c.RetrievalWeights != (graphmem.Weights{}) {
		d.RetrievalWeights = c.RetrievalWeights
	}
	if c.ApprovalTimeout > 0 {
		d.ApprovalTimeout = c.ApprovalTimeout
	}
	if c.QueueSoftCap > 0 {
		d.QueueSoftCap = c.QueueSoftCap
	}
	if c.CompletionMaxTokens > 0 {
		d.CompletionMaxTokens = c.CompletionMaxTokens
	}
	if c.AutoAssign != (personaskill.AutoAssignConfig{}) {
		d.AutoAssign = c.AutoAssign
	}
	d.Model = c.Model
	d.System = c.System
	return d
}

// Deps collects the Orchestrator Core's collaborators (C1-C9 plus the
// reused LLM provider layer). Bus, Approvals, Policy, Doctor, Memory,
// Skills, Hooks, and Events may be nil; the driver degrades gracefully
// (no publishes, fail-open/fail-closed per the component's own rule,
// pass-through diagnosis, no memory context, no skill metrics, no
// post-execution hooks, no persisted event log, respectively). Runner,
// Registry, and Provider are required.
type Deps struct {
	Bus       *eventbus.Bus
	Approvals *approval.Manager
	Policy    *toolpolicy.Resolver
	Runner    *tools.Runner
	Registry  *tools.Registry
	Doctor    tools.Doctor
	Memory    *graphmem.Store
	Skills    *personaskill.Store
	Hooks     PostExecutionHooks
	Provider  providers.LLMProvider
	Events    EventStore
	Logger    *observability.Logger
}

// sessionMeta is what the driver remembers about a session between
// Admit calls: the channel it arrived on, its owner, and its configured
// default persona.
type sessionMeta struct {
	channelKind    string
	ownerID        string
	defaultPersona string
}

// Driver is the Orchestrator Core (C10): it owns the Session/Queue Layer
// (C9) and, for each admitted message, runs the plan-act-observe loop
// described in spec §4.10.
type Driver struct {
	deps Deps
	cfg  Config

	queue *sessions.ExecutionQueue

	mu          sync.Mutex
	sessionMeta map[string]*sessionMeta
}

// New constructs a Driver. The queue's soft cap and Starter are wired
// immediately; Admit is the only entry point callers need afterward.
func New(deps Deps, cfg Config) *Driver {
	if deps.Doctor == nil {
		deps.Doctor = tools.HeuristicDoctor{}
	}
	d := &Driver{
		deps:        deps,
		cfg:         cfg.withDefaults(),
		sessionMeta: make(map[string]*sessionMeta),
	}
	d.queue = sessions.NewExecutionQueue(d.cfg.QueueSoftCap, d.start)
	return d
}

// Admit is the uniform inbound entry point of spec §6:
// admit(session_id, user_id, channel_kind, input_text, active_persona?).
func (d *Driver) Admit(ctx context.Context, sessionID, userID, channelKind, inputText, activePersona string) (started bool, position int, err error) {
	d.mu.Lock()
	meta, ok := d.sessionMeta[sessionID]
	if !ok {
		meta = &sessionMeta{}
		d.sessionMeta[sessionID] = meta
	}
	if channelKind != "" {
		meta.channelKind = channelKind
	}
	if meta.ownerID == "" {
		meta.ownerID = userID
	}
	if activePersona != "" {
		meta.defaultPersona = activePersona
	}
	d.mu.Unlock()

	return d.queue.Send(ctx, sessionID, userID, "", inputText)
}

// Cancel fires sessionID's active Execution's cancel token, if any.
func (d *Driver) Cancel(sessionID, callerUserID, callerScope string) (bool, error) {
	return d.queue.Cancel(sessionID, callerUserID, callerScope)
}

// Delete forgets sessionID entirely: its queue state and its cached
// channel/persona metadata.
func (d *Driver) Delete(sessionID, callerUserID, callerScope string) error {
	if err := d.queue.Delete(sessionID, callerUserID, callerScope); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.sessionMeta, sessionID)
	d.mu.Unlock()
	return nil
}

// start is the sessions.Starter the queue invokes, in its own goroutine,
// whenever a message is admitted to an idle session or drained from its
// backlog. It runs detached from the caller's request context: an
// Execution must survive past whatever request triggered Admit.
func (d *Driver) start(_ context.Context, sessionID, text string, cancel <-chan struct{}) {
	d.mu.Lock()
	meta, ok := d.sessionMeta[sessionID]
	d.mu.Unlock()
	if !ok {
		meta = &sessionMeta{}
	}

	d.runExecution(context.Background(), sessionID, meta, text, cancel)
	d.queue.Complete(context.Background(), sessionID)
}

// runExecution implements spec §4.10's 5-step outline around the inner
// plan-act-observe loop in drive.
func (d *Driver) runExecution(ctx context.Context, sessionID string, meta *sessionMeta, inputText string, cancel <-chan struct{}) {
	execID := uuid.NewString()
	persona := resolvePersona(inputText, meta.defaultPersona)
	exec := &Execution{
		ID:            execID,
		SessionKey:    sessionID,
		UserID:        meta.ownerID,
		ChannelKind:   meta.channelKind,
		StartedAt:     time.Now(),
		Status:        StatusRunning,
		ActivePersona: persona,
		InputText:     inputText,
		cancel:        cancel,
	}

	d.publish(eventbus.NewExecutionStarted(execID, sessionID, 0))
	d.appendEvent(exec, "execution_started", map[string]string{"session_key": sessionID}, nil)

	result, err := d.drive(ctx, exec)

	switch {
	case err != nil:
		sanitised := sanitizeError(err)
		exec.Status = StatusFailed
		d.publish(eventbus.NewExecutionFailed(execID, sanitised, 0))
		d.appendEvent(exec, "execution_failed", map[string]string{"error_sanitised": sanitised}, nil)
		d.runHooks(ctx, exec, "", false, nil)
	case exec.Status == StatusCancelled:
		d.publish(eventbus.NewExecutionCancelled(execID, 0))
		d.appendEvent(exec, "execution_cancelled", nil, nil)
		d.runHooks(ctx, exec, result.text, false, result.skillsUsed)
	default:
		exec.Status = StatusCompleted
		d.publish(eventbus.NewExecutionCompleted(execID, 0))
		d.appendEvent(exec, "execution_completed", map[string]string{"response": result.text}, nil)
		d.indexTurnPair(ctx, sessionID, inputText, result.text)
		d.runHooks(ctx, exec, result.text, true, result.skillsUsed)
	}
}

// driveResult is the inner loop's return value before it's translated
// into a published event/hook outcome.
type driveResult struct {
	text       string
	skillsUsed []string
}

// drive runs spec §4.10 steps 2-3: context composition followed by the
// bounded plan-act-observe loop.
func (d *Driver) drive(ctx context.Context, exec *Execution) (driveResult, error) {
	messages := d.composeContext(ctx, exec)

	var skillsUsed []string

	for iter := 1; iter <= d.cfg.MaxIterations; iter++ {
		exec.Iteration = iter

		if exec.cancelled() {
			exec.Status = StatusCancelled
			return driveResult{text: lastAssistantText(messages), skillsUsed: skillsUsed}, nil
		}

		d.publish(eventbus.NewPlanningStarted(exec.ID, iter, 0))
		d.appendEvent(exec, "planning_started", map[string]int{"iteration": iter}, nil)

		req := &providers.CompletionRequest{
			Model:     d.cfg.Model,
			System:    d.cfg.System,
			Messages:  messages,
			Tools:     translateTools(d.deps.Registry.Enabled()),
			MaxTokens: d.cfg.CompletionMaxTokens,
		}

		assistantText, toolCalls, err := d.stream(ctx, exec, req)
		if err != nil {
			return driveResult{}, fmt.Errorf("orchestrator: llm completion: %w", err)
		}

		if len(toolCalls) == 0 {
			messages = append(messages, providers.CompletionMessage{Role: "assistant", Content: assistantText})
			return driveResult{text: assistantText, skillsUsed: skillsUsed}, nil
		}

		messages = append(messages, providers.CompletionMessage{Role: "assistant", Content: assistantText, ToolCalls: toolCalls})

		var toolResults []models.ToolResult
		for _, call := range toolCalls {
			if exec.cancelled() {
				exec.Status = StatusCancelled
				return driveResult{text: assistantText, skillsUsed: skillsUsed}, nil
			}
			result, skillID := d.executeToolCall(ctx, exec, call)
			toolResults = append(toolResults, *result)
			if skillID != "" {
				skillsUsed = appendUnique(skillsUsed, skillID)
			}
		}
		messages = append(messages, providers.CompletionMessage{Role: "tool", ToolResults: toolResults})

		if exec.cancelled() {
			exec.Status = StatusCancelled
			return driveResult{text: assistantText, skillsUsed: skillsUsed}, nil
		}
	}

	// Iteration cap exhaustion is a normal completion using the last
	// assistant message, per spec §4.10.
	return driveResult{text: lastAssistantText(messages), skillsUsed: skillsUsed}, nil
}

// composeContext implements spec §4.10 step 2: retrieve past-turn
// context from C7, then seed the conversation with it plus the new
// message.
func (d *Driver) composeContext(ctx context.Context, exec *Execution) []providers.CompletionMessage {
	var messages []providers.CompletionMessage

	if d.deps.Memory != nil {
		turns, err := d.deps.Memory.Retrieve(ctx, exec.InputText, graphmem.RetrieveOptions{
			MaxTurns:  d.cfg.MaxTurns,
			MaxTokens: d.cfg.MaxTokens,
			Weights:   d.cfg.RetrievalWeights,
		})
		if err != nil {
			d.logWarn(ctx, "memory retrieval failed", "error", err.Error())
		}
		for _, t := range turns {
			messages = append(messages, providers.CompletionMessage{Role: strings.ToLower(t.Role), Content: t.Content})
		}
	}

	messages = append(messages, providers.CompletionMessage{Role: "user", Content: exec.InputText})
	return messages
}

// stream consumes a single Complete call's channel, per spec §4.10 step
// 3.b-c: text deltas become ChatDelta{is_final=false}, a final message
// with no tool calls becomes ChatDelta{is_final=true}.
func (d *Driver) stream(ctx context.Context, exec *Execution, req *providers.CompletionRequest) (string, []models.ToolCall, error) {
	chunks, err := d.deps.Provider.Complete(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", nil, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			d.publish(eventbus.NewChatDelta(exec.ID, chunk.Text, false, 0))
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
	}

	if len(toolCalls) == 0 {
		d.publish(eventbus.NewChatDelta(exec.ID, text.String(), true, 0))
	}
	return text.String(), toolCalls, nil
}

// executeToolCall implements spec §4.10 step 3.d in full: policy
// consultation, approval wait, lenient argument parsing, C5 dispatch,
// Tool-Doctor error enrichment, and the C8 metric update.
func (d *Driver) executeToolCall(ctx context.Context, exec *Execution, call models.ToolCall) (*models.ToolResult, string) {
	d.publish(eventbus.NewToolStarted(exec.ID, call.Name, call.ID, 0))
	d.appendEvent(exec, "tool_call", map[string]string{"tool_name": call.Name, "tool_call_id": call.ID, "input": string(call.Input)}, nil)

	policyCtx := toolpolicy.Context{Agent: exec.ActivePersona}
	if d.deps.Provider != nil {
		policyCtx.Provider = d.deps.Provider.Name()
	}
	if desc, ok := d.deps.Registry.Get(call.Name); ok {
		policyCtx.ToolGroup = desc.Category
	}

	action := toolpolicy.ActionAllow
	if d.deps.Policy != nil {
		action = d.deps.Policy.ResolveOrDefault(call.Name, policyCtx)
	}

	args, skillID := d.parseArgs(ctx, call.Name, call.Input)

	switch action {
	case toolpolicy.ActionDeny:
		return d.synthesizeDenial(exec, call, "denied by security policy"), skillID
	case toolpolicy.ActionRequireApproval:
		if d.deps.Approvals == nil {
			return d.synthesizeDenial(exec, call, "denied"), skillID
		}
		req, ch := d.deps.Approvals.CreateAsync(exec.ID, exec.ChannelKind, exec.SessionKey, exec.UserID, call.Name, "tool call requires approval: "+call.Name)
		d.publish(eventbus.NewApprovalRequired(exec.ID, req.ID, 0))
		d.appendEvent(exec, "approval_required", map[string]string{"request_id": req.ID}, nil)
		if d.deps.Approvals.WaitAsync(ctx, ch, d.cfg.ApprovalTimeout) != approval.DecisionApproved {
			return d.synthesizeDenial(exec, call, "denied"), skillID
		}
	}

	start := time.Now()
	result, err := d.deps.Runner.Execute(ctx, tools.Call{ToolCallID: call.ID, Name: call.Name, Input: args})
	duration := time.Since(start).Milliseconds()

	var success bool
	var content string
	switch {
	case err != nil:
		success = false
		content = errorJSON(d.deps.Doctor.DiagnoseError(call.Name, err.Error()))
	case !result.Success:
		success = false
		content = errorJSON(d.deps.Doctor.DiagnoseError(call.Name, result.Error))
	default:
		success = true
		b, marshalErr := json.Marshal(result.Output)
		if marshalErr != nil {
			success = false
			content = errorJSON(d.deps.Doctor.DiagnoseError(call.Name, marshalErr.Error()))
		} else {
			content = string(b)
		}
	}

	d.publish(eventbus.NewToolCompleted(exec.ID, call.ID, call.Name, success, duration, 0))
	d.appendEvent(exec, "tool_completed", map[string]any{"tool_name": call.Name, "tool_call_id": call.ID, "success": success}, &duration)

	if skillID != "" && d.deps.Skills != nil {
		if _, err := d.deps.Skills.RecordExecution(ctx, exec.ActivePersona, skillID, success, &duration); err == nil {
			if _, err := d.deps.Skills.CheckAutoAssignment(ctx, exec.ActivePersona, skillID, d.cfg.AutoAssign); err != nil {
				d.logWarn(ctx, "persona-skill auto-assignment check failed", "error", err.Error())
			}
		}
	}

	return &models.ToolResult{ToolCallID: call.ID, Content: content, IsError: !success}, skillID
}

// synthesizeDenial shapes a tool call's synthetic denial result and
// publishes/records its ToolCompleted as spec §4.10 step 3.d requires
// for both the Deny and the denied-RequireApproval paths.
func (d *Driver) synthesizeDenial(exec *Execution, call models.ToolCall, reason string) *models.ToolResult {
	d.publish(eventbus.NewToolCompleted(exec.ID, call.ID, call.Name, false, 0, 0))
	d.appendEvent(exec, "tool_completed", map[string]any{"tool_name": call.Name, "tool_call_id": call.ID, "success": false, "reason": reason}, nil)
	return &models.ToolResult{ToolCallID: call.ID, Content: errorJSON(reason), IsError: true}
}

// skillHintKey is the opaque planner-supplied field recognised in tool
// call arguments to attribute a call to a persona skill, per spec §9
// Open Question 2. It is stripped before the remaining arguments reach
// the tool itself.
const skillHintKey = "_skill_id"

// parseArgs implements spec §4.10 step 3.d's lenient argument parsing:
// malformed JSON becomes {} with a warning, and a skill hint is pulled
// out of the parsed object before the tool sees it.
func (d *Driver) parseArgs(ctx context.Context, toolName string, raw json.RawMessage) (json.RawMessage, string) {
	if len(raw) == 0 || !json.Valid(raw) {
		d.logWarn(ctx, "tool call arguments malformed JSON; substituting empty object", "tool_name", toolName)
		return json.RawMessage(`{}`), ""
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		d.logWarn(ctx, "tool call arguments are not a JSON object; substituting empty object", "tool_name", toolName)
		return json.RawMessage(`{}`), ""
	}

	skillID, _ := decoded[skillHintKey].(string)
	if skillID != "" {
		delete(decoded, skillHintKey)
	}
	cleaned, err := json.Marshal(decoded)
	if err != nil {
		return json.RawMessage(`{}`), skillID
	}
	return cleaned, skillID
}

// indexTurnPair indexes the final user/assistant turn pair into memory,
// per spec §4.10's "memory indexing of the final turn pair" side effect.
func (d *Driver) indexTurnPair(ctx context.Context, sessionKey, userText, assistantText string) {
	if d.deps.Memory == nil {
		return
	}
	next, err := d.deps.Memory.NextTurnIndex(ctx, sessionKey)
	if err != nil {
		d.logWarn(ctx, "memory next-turn-index lookup failed", "error", err.Error())
		return
	}
	msgs := []graphmem.Message{
		{TurnIndex: next, Role: "User", Content: userText},
		{TurnIndex: next + 1, Role: "Assistant", Content: assistantText},
	}
	if err := d.deps.Memory.IndexSession(ctx, sessionKey, msgs); err != nil {
		d.logWarn(ctx, "memory indexing failed", "error", err.Error())
	}
}

// runHooks invokes C11 fire-and-forget, per spec §4.10 step 4/5 and
// §4.11's own "failures are logged, never propagated" rule.
func (d *Driver) runHooks(ctx context.Context, exec *Execution, responseText string, taskCompleted bool, skillsUsed []string) {
	if d.deps.Hooks == nil {
		return
	}
	outcome := Outcome{
		ExecutionID:   exec.ID,
		SessionKey:    exec.SessionKey,
		Persona:       exec.ActivePersona,
		ResponseText:  responseText,
		Status:        exec.Status,
		TaskCompleted: taskCompleted,
		SkillsUsed:    skillsUsed,
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logWarn(ctx, "post-execution hooks panicked", "execution_id", exec.ID, "panic", fmt.Sprintf("%v", r))
			}
		}()
		d.deps.Hooks.Run(ctx, outcome)
	}()
}

func (d *Driver) publish(ev eventbus.Event) {
	if d.deps.Bus == nil {
		return
	}
	d.deps.Bus.Publish(ev)
}

func (d *Driver) appendEvent(exec *Execution, eventType string, payload any, durationMS *int64) {
	if d.deps.Events == nil {
		return
	}
	_ = d.deps.Events.Append(EventRecord{
		ExecutionID: exec.ID,
		SequenceNum: exec.nextSeq(),
		EventType:   eventType,
		Timestamp:   time.Now(),
		DurationMS:  durationMS,
		Payload:     payload,
	})
}

func (d *Driver) logWarn(ctx context.Context, msg string, args ...any) {
	if d.deps.Logger == nil {
		return
	}
	d.deps.Logger.Warn(ctx, msg, args...)
}

func errorJSON(message string) string {
	b, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(b)
}

// lastAssistantText scans backward for the most recent assistant message,
// used both for iteration-cap exhaustion and for a cancelled Execution's
// partial response.
func lastAssistantText(messages []providers.CompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i].Content
		}
	}
	return ""
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
