package postgres

import (
	"context"
	"testing"
	"time"
)

func TestNewEventLog(t *testing.T) {
	t.Parallel()

	t.Run("defaults schema to public", func(t *testing.T) {
		t.Parallel()
		log := NewEventLog(nil, "")
		if log.schema != "public" {
			t.Errorf("schema = %s, want public", log.schema)
		}
	})

	t.Run("keeps custom schema", func(t *testing.T) {
		t.Parallel()
		log := NewEventLog(nil, "parley")
		if log.schema != "parley" {
			t.Errorf("schema = %s, want parley", log.schema)
		}
		if log.tableName() != "parley.session_events" {
			t.Errorf("tableName() = %s", log.tableName())
		}
	})

	t.Run("initializes subscribers map", func(t *testing.T) {
		t.Parallel()
		log := NewEventLog(nil, "public")
		if log.subscribers == nil {
			t.Error("subscribers should be initialized")
		}
	})
}

func TestEventLog_SubscribeLifecycle(t *testing.T) {
	t.Parallel()

	log := NewEventLog(nil, "public")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := log.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	log.mu.RLock()
	subs := len(log.subscribers["s1"])
	log.mu.RUnlock()
	if subs != 1 {
		t.Fatalf("subscribers = %d, want 1", subs)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Schema != "public" {
		t.Errorf("Schema = %s", cfg.Schema)
	}
	if cfg.MaxConns <= 0 || cfg.MinConns <= 0 {
		t.Error("pool sizes must default to positive values")
	}
}
