package sessions

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSendStartsImmediatelyWhenIdle(t *testing.T) {
	var mu sync.Mutex
	var got []string
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {
		mu.Lock()
		got = append(got, text)
		mu.Unlock()
	}
	q := NewExecutionQueue(10, starter)

	started, pos, err := q.Send(context.Background(), "sess-1", "user-1", "", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !started || pos != 0 {
		t.Fatalf("expected immediate start at position 0, got started=%v pos=%d", started, pos)
	}
}

func TestSendEnqueuesWhileActive(t *testing.T) {
	block := make(chan struct{})
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {
		<-block
	}
	q := NewExecutionQueue(10, starter)

	if started, _, err := q.Send(context.Background(), "sess-1", "user-1", "", "first"); err != nil || !started {
		t.Fatalf("expected first send to start immediately, err=%v started=%v", err, started)
	}

	started, pos, err := q.Send(context.Background(), "sess-1", "user-1", "", "second")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if started || pos != 1 {
		t.Fatalf("expected enqueue at position 1, got started=%v pos=%d", started, pos)
	}
	close(block)
}

func TestCompleteDrainsNextQueuedMessage(t *testing.T) {
	var mu sync.Mutex
	var started []string
	gate := make(chan struct{}, 1)
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {
		mu.Lock()
		started = append(started, text)
		mu.Unlock()
		gate <- struct{}{}
	}
	q := NewExecutionQueue(10, starter)
	ctx := context.Background()

	if _, _, err := q.Send(ctx, "sess-1", "user-1", "", "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-gate
	if _, _, err := q.Send(ctx, "sess-1", "user-1", "", "second"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	q.Complete(ctx, "sess-1")
	<-gate

	mu.Lock()
	defer mu.Unlock()
	if len(started) != 2 || started[1] != "second" {
		t.Fatalf("expected second message to drain after Complete, got %v", started)
	}
}

func TestCancelSignalsActiveExecution(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {
		close(started)
		<-cancel
		close(cancelled)
	}
	q := NewExecutionQueue(10, starter)
	if _, _, err := q.Send(context.Background(), "sess-1", "user-1", "", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-started

	ok, err := q.Cancel("sess-1", "user-1", "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Fatal("expected Cancel to report something was running")
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected cancel channel to be observed by the starter")
	}
}

func TestCancelReturnsFalseWhenNothingRunning(t *testing.T) {
	q := NewExecutionQueue(10, func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {})
	ok, err := q.Cancel("missing", "user-1", "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ok {
		t.Fatal("expected false for an unknown session")
	}
}

func TestSendRejectsNonOwnerWithoutAdminScope(t *testing.T) {
	block := make(chan struct{})
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) { <-block }
	q := NewExecutionQueue(10, starter)
	if _, _, err := q.Send(context.Background(), "sess-1", "user-1", "", "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, _, err := q.Send(context.Background(), "sess-1", "user-2", "", "second")
	if err == nil {
		t.Fatal("expected an authorization error for a non-owning user")
	}
	close(block)
}

func TestSendAllowsAdminScopeRegardlessOfOwner(t *testing.T) {
	block := make(chan struct{})
	starter := func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) { <-block }
	q := NewExecutionQueue(10, starter)
	if _, _, err := q.Send(context.Background(), "sess-1", "user-1", "", "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, _, err := q.Send(context.Background(), "sess-1", "user-2", ScopeAdmin, "second"); err != nil {
		t.Fatalf("expected admin scope to bypass ownership check, got %v", err)
	}
	close(block)
}

func TestDeleteRemovesSessionState(t *testing.T) {
	q := NewExecutionQueue(10, func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {})
	if _, _, err := q.Send(context.Background(), "sess-1", "user-1", "", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Delete("sess-1", "user-1", ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if depth := q.QueueDepth("sess-1"); depth != 0 {
		t.Fatalf("expected deleted session to report 0 depth, got %d", depth)
	}
}

func TestSoftCapEvictsOldestSession(t *testing.T) {
	q := NewExecutionQueue(2, func(ctx context.Context, sessionID, text string, cancel <-chan struct{}) {})
	ctx := context.Background()
	if _, _, err := q.Send(ctx, "sess-1", "user-1", "", "a"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, _, err := q.Send(ctx, "sess-2", "user-1", "", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, _, err := q.Send(ctx, "sess-3", "user-1", "", "c"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	q.mu.Lock()
	_, stillTracked := q.sessions["sess-1"]
	q.mu.Unlock()
	if stillTracked {
		t.Fatal("expected the oldest session to be evicted once the soft cap was exceeded")
	}
}
