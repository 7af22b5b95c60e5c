package sessions

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cratos-ai/cratos/internal/coreerr"
)

// ScopeAdmin grants cross-session access to ExecutionQueue operations that
// would otherwise require the caller to own the session.
const ScopeAdmin = "admin"

// Starter is invoked by ExecutionQueue when a message is admitted, either
// immediately (the session was idle) or after a drain (the previous
// Execution finished and this was next in line). It runs in its own
// goroutine; the queue does not wait for it to return. cancel fires when
// Cancel is called for this session while this message is active.
type Starter func(ctx context.Context, sessionID, text string, cancel <-chan struct{})

// DefaultQueueSoftCap is the default number of queued sessions kept before
// the oldest is evicted, per the event bus's session back-pressure policy.
const DefaultQueueSoftCap = 10

type queuedMessage struct {
	text       string
	enqueuedAt time.Time
}

type sessionState struct {
	ownerID string
	active  bool
	cancel  chan struct{}
	queue   *list.List    // of queuedMessage
	elem    *list.Element // this session's node in the queue's LRU order
}

// ExecutionQueue is the Session/Queue Layer (C9): at most one Execution
// runs per session at a time, further sends enqueue FIFO, and sessions
// beyond a configurable soft cap are evicted oldest-first.
type ExecutionQueue struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	order    *list.List // session ids, most-recently-touched at the back
	softCap  int
	starter  Starter
}

// NewExecutionQueue constructs an ExecutionQueue. softCap <= 0 uses
// DefaultQueueSoftCap.
func NewExecutionQueue(softCap int, starter Starter) *ExecutionQueue {
	if softCap <= 0 {
		softCap = DefaultQueueSoftCap
	}
	return &ExecutionQueue{
		sessions: make(map[string]*sessionState),
		order:    list.New(),
		softCap:  softCap,
		starter:  starter,
	}
}

// Send admits text to sessionID's Execution if idle, otherwise enqueues it
// FIFO. Returns started=true with queue_position=0 when the starter was
// invoked immediately, or started=false with the 1-based position the
// message landed at in the backlog.
func (q *ExecutionQueue) Send(ctx context.Context, sessionID, ownerID, callerScope, text string) (started bool, queuePosition int, err error) {
	q.mu.Lock()

	st, ok := q.sessions[sessionID]
	if !ok {
		st = &sessionState{ownerID: ownerID, queue: list.New()}
		q.sessions[sessionID] = st
		st.elem = q.order.PushBack(sessionID)
		q.evictOverCapLocked()
	} else {
		if err := authorize(st.ownerID, ownerID, callerScope); err != nil {
			q.mu.Unlock()
			return false, 0, err
		}
		q.touchLocked(st)
	}

	if !st.active {
		st.active = true
		st.cancel = make(chan struct{})
		cancelCh := st.cancel
		q.mu.Unlock()
		go q.starter(ctx, sessionID, text, cancelCh)
		return true, 0, nil
	}

	st.queue.PushBack(queuedMessage{text: text, enqueuedAt: time.Now()})
	position := st.queue.Len()
	q.mu.Unlock()
	return false, position, nil
}

// Complete marks sessionID's active Execution as finished and, if the
// backlog is non-empty, pops the next message and starts a new one. C10
// calls this on ExecutionCompleted, ExecutionFailed, and
// ExecutionCancelled.
func (q *ExecutionQueue) Complete(ctx context.Context, sessionID string) {
	q.mu.Lock()
	st, ok := q.sessions[sessionID]
	if !ok {
		q.mu.Unlock()
		return
	}
	st.active = false
	st.cancel = nil

	front := st.queue.Front()
	if front == nil {
		q.mu.Unlock()
		return
	}
	st.queue.Remove(front)
	msg := front.Value.(queuedMessage)
	st.active = true
	st.cancel = make(chan struct{})
	cancelCh := st.cancel
	q.mu.Unlock()

	go q.starter(ctx, sessionID, msg.text, cancelCh)
}

// Cancel signals the active Execution's cancel token, if one is running.
// Returns whether anything was running.
func (q *ExecutionQueue) Cancel(sessionID, callerUserID, callerScope string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if err := authorize(st.ownerID, callerUserID, callerScope); err != nil {
		return false, err
	}
	if !st.active || st.cancel == nil {
		return false, nil
	}
	select {
	case <-st.cancel:
		// already closed
	default:
		close(st.cancel)
	}
	return true, nil
}

// Delete removes sessionID's queue and cached state entirely. It does not
// cancel a running Execution; callers that want that should Cancel first.
func (q *ExecutionQueue) Delete(sessionID, callerUserID, callerScope string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.sessions[sessionID]
	if !ok {
		return nil
	}
	if err := authorize(st.ownerID, callerUserID, callerScope); err != nil {
		return err
	}
	q.order.Remove(st.elem)
	delete(q.sessions, sessionID)
	return nil
}

// QueueDepth reports how many messages are backlogged behind the active
// Execution for sessionID.
func (q *ExecutionQueue) QueueDepth(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.sessions[sessionID]
	if !ok {
		return 0
	}
	return st.queue.Len()
}

// touchLocked moves sessionID to the back of the eviction order, marking
// it most-recently-used. Caller must hold q.mu.
func (q *ExecutionQueue) touchLocked(st *sessionState) {
	q.order.MoveToBack(st.elem)
}

// evictOverCapLocked drops the oldest (front-of-order) sessions once the
// tracked session count exceeds softCap. Caller must hold q.mu.
func (q *ExecutionQueue) evictOverCapLocked() {
	for q.order.Len() > q.softCap {
		front := q.order.Front()
		id := front.Value.(string)
		q.order.Remove(front)
		delete(q.sessions, id)
	}
}

func authorize(ownerID, callerID, callerScope string) error {
	if callerScope == ScopeAdmin {
		return nil
	}
	if ownerID == "" || ownerID == callerID {
		return nil
	}
	return coreerr.PermissionDenied("session is owned by another user")
}
