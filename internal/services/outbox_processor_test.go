package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"fmt"
	"time"

	"savetrack/internal/amqp"
	"savetrack/internal/core"
	"savetrack/internal/store/memory"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	failFor   map[int64]error
	failAll   error
	calls     int
}

func (f *fakePublisher) Publish(_ context.Context, id int64, _ core.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll != nil {
		return f.failAll
	}
	if err := f.failFor[id]; err != nil {
		return err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func enqueue(t *testing.T, st *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := st.EnqueueEvent(context.Background(), core.Event{Type: core.EventGoalProgressed, OwnerID: "alice"}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	config := DefaultOutboxProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestOutboxProcessor_ProcessOnce(t *testing.T) {
	st := memory.New()
	enqueue(t, st, 3)
	pub := &fakePublisher{failFor: map[int64]error{2: errors.New("broker unreachable")}}

	config := DefaultOutboxProcessorConfig()
	config.MaxRetries = 2
	p := NewOutboxProcessor(st, pub, config, testLogger())
	ctx := context.Background()

	n, err := p.ProcessOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first pass: n=%d err=%v", n, err)
	}
	pending, _ := st.PendingEvents(ctx, 0)
	if len(pending) != 1 || pending[0].ID != 2 || pending[0].Attempts != 1 {
		t.Fatalf("failed event must stay pending with one attempt: %+v", pending)
	}

	if n, _ := p.ProcessOnce(ctx); n != 0 {
		t.Fatalf("second pass published %d", n)
	}
	if pending, _ := st.PendingEvents(ctx, 0); len(pending) != 0 {
		t.Fatalf("event must be marked failed after max retries: %+v", pending)
	}
}

func TestOutboxProcessor_OpenBreakerKeepsEventsPending(t *testing.T) {
	st := memory.New()
	enqueue(t, st, 2)
	pub := &fakePublisher{failAll: fmt.Errorf("publish event 1: %w", amqp.ErrCircuitOpen)}
	p := NewOutboxProcessor(st, pub, DefaultOutboxProcessorConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if n, err := p.ProcessOnce(ctx); err != nil || n != 0 {
			t.Fatalf("poll %d: n=%d err=%v", i, n, err)
		}
	}
	if pub.calls != 5 {
		t.Fatalf("an open breaker must end the batch after one attempt, got %d calls", pub.calls)
	}
	pending, _ := st.PendingEvents(ctx, 0)
	if len(pending) != 2 {
		t.Fatalf("events must stay pending while the breaker is open, got %d", len(pending))
	}
	for _, e := range pending {
		if e.Attempts != 0 {
			t.Fatalf("an open breaker must not count as an attempt: %+v", e)
		}
	}

	pub.failAll = nil
	if n, _ := p.ProcessOnce(ctx); n != 2 {
		t.Fatalf("expected both events once the broker is back, got %d", n)
	}
}

func TestOutboxProcessor_BatchSize(t *testing.T) {
	st := memory.New()
	enqueue(t, st, 5)
	pub := &fakePublisher{}

	config := DefaultOutboxProcessorConfig()
	config.BatchSize = 2
	p := NewOutboxProcessor(st, pub, config, testLogger())

	if n, _ := p.ProcessOnce(context.Background()); n != 2 {
		t.Fatalf("expected a batch of 2, got %d", n)
	}
}

func TestOutboxProcessor_IsRunning(t *testing.T) {
	p := NewOutboxProcessor(memory.New(), &fakePublisher{}, DefaultOutboxProcessorConfig(), testLogger())

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestOutboxProcessor_StartTwice(t *testing.T) {
	config := DefaultOutboxProcessorConfig()
	config.PollInterval = 100 * time.Millisecond
	p := NewOutboxProcessor(memory.New(), &fakePublisher{}, config, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer p.Stop(context.Background())

	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestOutboxProcessor_StopNotRunning(t *testing.T) {
	p := NewOutboxProcessor(memory.New(), &fakePublisher{}, DefaultOutboxProcessorConfig(), testLogger())

	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestOutboxProcessor_RunLoopDrains(t *testing.T) {
	st := memory.New()
	enqueue(t, st, 3)
	pub := &fakePublisher{}

	config := DefaultOutboxProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	p := NewOutboxProcessor(st, pub, config, testLogger())

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if pub.count() != 3 {
		t.Fatalf("expected 3 published events, got %d", pub.count())
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}
