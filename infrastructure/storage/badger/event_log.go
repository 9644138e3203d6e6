package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/parley/domain/session"
)

// EventLog is a BadgerDB-backed implementation of session.EventLog.
//
// Key layout:
//
//	prefix events:<sessionID>:<sequence big-endian 8 bytes> -> event JSON
//	prefix seq:<sessionID>                                  -> counter
type EventLog struct {
	db          *badger.DB
	keyPrefix   string
	subscribers map[string][]chan session.Event
	mu          sync.RWMutex
	gcStop      chan struct{}
	gcWg        sync.WaitGroup
}

// NewEventLog creates a new BadgerDB event log with the given configuration.
func NewEventLog(cfg Config, opts ...Option) (*EventLog, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	l := &EventLog{
		db:          db,
		keyPrefix:   cfg.KeyPrefix,
		subscribers: make(map[string][]chan session.Event),
		gcStop:      make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		l.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return l, nil
}

// NewEventLogFromDB creates an event log from an existing BadgerDB database.
func NewEventLogFromDB(db *badger.DB, keyPrefix string) *EventLog {
	return &EventLog{
		db:          db,
		keyPrefix:   keyPrefix,
		subscribers: make(map[string][]chan session.Event),
		gcStop:      make(chan struct{}),
	}
}

func (l *EventLog) startGC(interval time.Duration, discardRatio float64) {
	l.gcWg.Add(1)
	go func() {
		defer l.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// RunValueLogGC returns an error when there is
				// nothing to collect; that is not a failure.
				_ = l.db.RunValueLogGC(discardRatio)
			case <-l.gcStop:
				return
			}
		}
	}()
}

func (l *EventLog) eventKey(sessionID string, seq uint64) []byte {
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append([]byte(l.keyPrefix+"events:"+sessionID+":"), seqBytes...)
}

func (l *EventLog) seqKey(sessionID string) []byte {
	return []byte(l.keyPrefix + "seq:" + sessionID)
}

// Append persists one or more events atomically.
func (l *EventLog) Append(ctx context.Context, events ...session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	bySession := make(map[string][]session.Event)
	for _, e := range events {
		if e.SessionID == "" {
			return session.ErrEmptyID
		}
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}

	now := time.Now()
	var appended []session.Event

	err := l.db.Update(func(txn *badger.Txn) error {
		for sessionID, sessionEvents := range bySession {
			var seq uint64
			seqKey := l.seqKey(sessionID)

			item, err := txn.Get(seqKey)
			if err == nil {
				err = item.Value(func(val []byte) error {
					if len(val) == 8 {
						seq = binary.BigEndian.Uint64(val)
					}
					return nil
				})
				if err != nil {
					return err
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			for i := range sessionEvents {
				e := &sessionEvents[i]
				if e.ID == "" {
					e.ID = uuid.New().String()
				}
				if e.Timestamp.IsZero() {
					e.Timestamp = now
				}
				seq++
				e.Sequence = seq

				data, err := json.Marshal(e)
				if err != nil {
					return err
				}
				if err := txn.Set(l.eventKey(sessionID, seq), data); err != nil {
					return err
				}
				appended = append(appended, *e)
			}

			seqBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(seqBytes, seq)
			if err := txn.Set(seqKey, seqBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.notifySubscribers(appended)
	return nil
}

// LoadEvents retrieves all events for a session in sequence order.
func (l *EventLog) LoadEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.scan(sessionID, l.eventKey(sessionID, 0))
}

// LoadEventsFrom retrieves events starting from a sequence number.
func (l *EventLog) LoadEventsFrom(ctx context.Context, sessionID string, fromSeq uint64) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.scan(sessionID, l.eventKey(sessionID, fromSeq))
}

func (l *EventLog) scan(sessionID string, startKey []byte) ([]session.Event, error) {
	prefix := []byte(l.keyPrefix + "events:" + sessionID + ":")
	var events []session.Event

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(startKey); it.Valid(); it.Next() {
			var e session.Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				continue // skip malformed entries
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// Subscribe returns a channel that receives new events for a session.
func (l *EventLog) Subscribe(ctx context.Context, sessionID string) (<-chan session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	ch := make(chan session.Event, 100)
	l.subscribers[sessionID] = append(l.subscribers[sessionID], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unsubscribe(sessionID, ch)
	}()

	return ch, nil
}

func (l *EventLog) unsubscribe(sessionID string, ch chan session.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subscribers[sessionID]
	for i, sub := range subs {
		if sub == ch {
			l.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(l.subscribers[sessionID]) == 0 {
		delete(l.subscribers, sessionID)
	}
}

func (l *EventLog) notifySubscribers(events []session.Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range events {
		for _, ch := range l.subscribers[e.SessionID] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Close stops GC, closes subscriber channels, and closes the database.
func (l *EventLog) Close() error {
	close(l.gcStop)
	l.gcWg.Wait()

	l.mu.Lock()
	for _, subs := range l.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	l.subscribers = make(map[string][]chan session.Event)
	l.mu.Unlock()

	return l.db.Close()
}

var _ session.EventLog = (*EventLog)(nil)
