// Package approval implements the Approval Manager (C2): request
// lifecycle, nonce-based replay defence, owner/admin authorization, and
// oneshot resolution for high-risk tool calls.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/cratos-ai/cratos/internal/coreerr"
	"github.com/cratos-ai/cratos/internal/eventbus"
	"github.com/cratos-ai/cratos/pkg/coreapi"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an ApprovalRequest.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Decision is what a resolver communicates to resolve().
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// DefaultTimeout is the window an approval stays Pending before
// cleanup_expired converts it to Rejected.
const DefaultTimeout = 5 * time.Minute

// retentionWindow bounds how long a resolved/expired request is kept
// around for lookups before cleanup_expired evicts it, per spec §4.2.
const retentionWindow = time.Hour

// Request is the approval record described in spec §3.
type Request struct {
	ID             string
	ExecutionID    string
	ChannelKind    string
	ChannelID      string
	UserID         string // owner
	Action         string
	RiskDescription string
	Nonce          string
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ResponderID    string
	RespondedAt    time.Time
}

// IsDenied reports whether the request's terminal status counts as a
// denial for callers, per spec §3.
func (r *Request) IsDenied() bool {
	return r.Status == StatusRejected || r.Status == StatusExpired
}

type pendingWaiter struct {
	ch chan Decision
}

// Manager owns ApprovalRequest records and their oneshot resolvers. The
// zero value is not usable; construct with New.
type Manager struct {
	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string]*pendingWaiter
	bus      *eventbus.Bus
	seq      func() uint64
	now      func() time.Time
	timeout  time.Duration
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithBus wires an event bus so create_async can publish ApprovalRequired.
func WithBus(bus *eventbus.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithClock overrides time.Now, for deterministic expiry tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New constructs an approval Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		requests: make(map[string]*Request),
		waiters:  make(map[string]*pendingWaiter),
		now:      time.Now,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create inserts a new Pending request with a fresh id and nonce.
func (m *Manager) Create(execID, channelKind, channelID, owner, action, riskDescription string) *Request {
	now := m.now()
	req := &Request{
		ID:              uuid.NewString(),
		ExecutionID:     execID,
		ChannelKind:     channelKind,
		ChannelID:       channelID,
		UserID:          owner,
		Action:          action,
		RiskDescription: riskDescription,
		Nonce:           uuid.NewString(),
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.timeout),
	}
	m.mu.Lock()
	m.requests[req.ID] = req
	m.mu.Unlock()
	return req
}

// CreateAsync creates a request, registers a oneshot waiter channel, and
// (if an event bus is wired) publishes ApprovalRequired.
func (m *Manager) CreateAsync(execID, channelKind, channelID, owner, action, riskDescription string) (*Request, <-chan Decision) {
	req := m.Create(execID, channelKind, channelID, owner, action, riskDescription)

	ch := make(chan Decision, 1)
	m.mu.Lock()
	m.waiters[req.ID] = &pendingWaiter{ch: ch}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(eventbus.NewApprovalRequired(execID, req.ID, 0))
	}
	return req, ch
}

// GetRequest looks up a request by id.
func (m *Manager) GetRequest(id string) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok
}

// Resolve applies decision to the named request if nonce and
// authorization check out. Mirrors spec §4.2's six-step algorithm
// exactly: a nonce mismatch or authorization failure never mutates state.
func (m *Manager) Resolve(id, nonce string, decision Decision, responder *coreapi.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return coreerr.NotFound("approval request")
	}
	if nonce != req.Nonce {
		return coreerr.New(coreerr.KindInvalidNonce, "nonce does not match")
	}
	if responder == nil || (responder.UserID != req.UserID && !responder.IsAdmin()) {
		return coreerr.New(coreerr.KindUnauthorized, "responder is neither owner nor admin")
	}
	if req.Status != StatusPending {
		return coreerr.New(coreerr.KindExpired, "request is no longer pending")
	}

	now := m.now()
	switch decision {
	case DecisionApproved:
		req.Status = StatusApproved
	case DecisionRejected:
		req.Status = StatusRejected
	default:
		return coreerr.InvalidInput("unknown decision")
	}
	req.ResponderID = responder.UserID
	req.RespondedAt = now

	if waiter, ok := m.waiters[id]; ok {
		delete(m.waiters, id)
		select {
		case waiter.ch <- toDecision(req.Status):
		default:
			// Receiver already dropped; ignored per spec §4.2 step 6.
		}
		close(waiter.ch)
	}
	return nil
}

func toDecision(s Status) Decision {
	if s == StatusApproved {
		return DecisionApproved
	}
	return DecisionRejected
}

// WaitAsync blocks on ch until a decision arrives, ctx is cancelled, or
// timeout elapses, returning DecisionRejected in the latter two cases
// (fail-safe denial per spec §4.2/§7).
func (m *Manager) WaitAsync(ctx context.Context, ch <-chan Decision, timeout time.Duration) Decision {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d, ok := <-ch:
		if !ok {
			return DecisionRejected
		}
		return d
	case <-timer.C:
		return DecisionRejected
	case <-ctx.Done():
		return DecisionRejected
	}
}

// CleanupExpired marks all Pending requests past their expiry as Rejected
// (fail-safe: an approval never silently disappears) and evicts records
// older than retentionWindow.
func (m *Manager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, req := range m.requests {
		if req.Status == StatusPending && now.After(req.ExpiresAt) {
			req.Status = StatusExpired
			req.RespondedAt = now
			if waiter, ok := m.waiters[id]; ok {
				delete(m.waiters, id)
				select {
				case waiter.ch <- DecisionRejected:
				default:
				}
				close(waiter.ch)
			}
		}
		if req.Status != StatusPending && now.Sub(req.RespondedAt) > retentionWindow && !req.RespondedAt.IsZero() {
			delete(m.requests, id)
		}
	}
}

// ApproveBy and RejectBy are deprecated legacy entry points retained for
// callers migrated from the pre-nonce approval API (original_source
// supplement). They resolve the request's current nonce internally so
// behaviour is identical to Resolve when the caller is the owner.
//
// Deprecated: use Resolve with the nonce handed out at creation.
func (m *Manager) ApproveBy(id string, responder *coreapi.Principal) error {
	return m.resolveByLegacyLookup(id, DecisionApproved, responder)
}

// Deprecated: use Resolve with the nonce handed out at creation.
func (m *Manager) RejectBy(id string, responder *coreapi.Principal) error {
	return m.resolveByLegacyLookup(id, DecisionRejected, responder)
}

func (m *Manager) resolveByLegacyLookup(id string, decision Decision, responder *coreapi.Principal) error {
	m.mu.Lock()
	req, ok := m.requests[id]
	var nonce string
	if ok {
		nonce = req.Nonce
	}
	m.mu.Unlock()
	if !ok {
		return coreerr.NotFound("approval request")
	}
	return m.Resolve(id, nonce, decision, responder)
}
