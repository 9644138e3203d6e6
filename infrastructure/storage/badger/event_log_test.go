package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/infrastructure/storage/badger"
)

func newEventLog(t *testing.T) *badger.EventLog {
	t.Helper()
	cfg := badger.DefaultConfig()
	cfg.GCInterval = 0
	log, err := badger.NewEventLog(cfg, badger.WithInMemory())
	if err != nil {
		t.Fatalf("NewEventLog() error = %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func mustMessageEvent(t *testing.T, sessionID string, source session.Source, text string) session.Event {
	t.Helper()
	e, err := session.NewMessageEvent(sessionID, source, text)
	if err != nil {
		t.Fatalf("NewMessageEvent() error = %v", err)
	}
	return e
}

func TestEventLog_AppendAndLoad(t *testing.T) {
	t.Parallel()

	log := newEventLog(t)
	ctx := context.Background()

	events := []session.Event{
		mustMessageEvent(t, "s1", session.SourceCustomer, "hello"),
		mustMessageEvent(t, "s1", session.SourceAgent, "hi there"),
		mustMessageEvent(t, "s2", session.SourceCustomer, "elsewhere"),
	}
	if err := log.Append(ctx, events...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := log.LoadEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	for i, e := range got {
		if e.Sequence != uint64(i+1) {
			t.Errorf("sequence = %d, want %d", e.Sequence, i+1)
		}
		if e.ID == "" {
			t.Error("event ID not assigned")
		}
	}
}

func TestEventLog_SequencesSurviveReopen(t *testing.T) {
	t.Parallel()

	cfg := badger.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.GCInterval = 0

	ctx := context.Background()

	log, err := badger.NewEventLog(cfg)
	if err != nil {
		t.Fatalf("NewEventLog() error = %v", err)
	}
	if err := log.Append(ctx, mustMessageEvent(t, "s1", session.SourceCustomer, "first")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	log, err = badger.NewEventLog(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	if err := log.Append(ctx, mustMessageEvent(t, "s1", session.SourceAgent, "second")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := log.LoadEventsFrom(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("LoadEventsFrom() error = %v", err)
	}
	if len(got) != 1 || got[0].Sequence != 2 {
		t.Fatalf("events = %+v, want just sequence 2", got)
	}
}

func TestEventLog_Subscribe(t *testing.T) {
	t.Parallel()

	log := newEventLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := log.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := log.Append(ctx, mustMessageEvent(t, "s1", session.SourceCustomer, "ping")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	select {
	case e := <-ch:
		if e.Text() != "ping" {
			t.Errorf("Text() = %q", e.Text())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}
