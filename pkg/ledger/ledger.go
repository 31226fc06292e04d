package ledger

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscriber receives events after their invocation has committed.
type Subscriber interface {
	Publish(ctx context.Context, event Event) error
}

// Ledger serializes invocations over a Backend.
type Ledger struct {
	backend     Backend
	mu          sync.Mutex
	now         func() time.Time
	durable     []string
	subscribers []Subscriber
}

type Option func(*Ledger)

// WithClock overrides the invocation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithDurable marks object types whose writes commit even when the
// invocation fails.
func WithDurable(objectTypes ...string) Option {
	return func(l *Ledger) {
		for _, t := range objectTypes {
			l.durable = append(l.durable, t+separator)
		}
	}
}

// WithSubscriber registers an event subscriber.
func WithSubscriber(s Subscriber) Option {
	return func(l *Ledger) { l.subscribers = append(l.subscribers, s) }
}

func New(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe adds a subscriber after construction.
func (l *Ledger) Subscribe(s Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, s)
}

// maxAttempts bounds how often an invocation is re-run after losing a
// commit race to another ledger over the same backend.
const maxAttempts = 5

// Invoke runs fn as one atomic invocation and returns fn's error. When the
// backend reports ErrConflict the invocation is discarded and fn runs again
// against fresh state, so fn must keep its side effects inside State.
func (l *Ledger) Invoke(ctx context.Context, fn func(State) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 1; ; attempt++ {
		tx := l.newTx(ctx)
		opErr, err := l.attempt(ctx, tx, fn)
		if err == nil {
			return opErr
		}
		if !errors.Is(err, ErrConflict) || attempt == maxAttempts || ctx.Err() != nil {
			return errors.Join(opErr, err)
		}
		log.Printf("ledger: retrying tx %s after conflict (attempt %d): %v", tx.txID, attempt, err)
	}
}

func (l *Ledger) newTx(ctx context.Context) *txState {
	return &txState{
		ctx:     ctx,
		backend: l.backend,
		txID:    uuid.NewString(),
		ts:      l.now().UTC(),
		writes:  map[string][]byte{},
		reads:   map[string]string{},
		ranges:  map[string]map[string]string{},
	}
}

// attempt runs fn once and commits its outcome. The first return is fn's
// error, the second a commit failure.
func (l *Ledger) attempt(ctx context.Context, tx *txState, fn func(State) error) (error, error) {
	opErr := fn(tx)

	writes, events := tx.writeSet(), tx.events
	if opErr != nil {
		writes, events = l.durableWrites(writes), nil
	}
	if len(writes) == 0 && len(events) == 0 {
		return opErr, nil
	}

	err := l.backend.Commit(ctx, Changeset{
		TxID:   tx.txID,
		Reads:  tx.reads,
		Ranges: tx.ranges,
		Writes: writes,
		Events: events,
	})
	if err != nil {
		return opErr, err
	}

	committed := make(map[string]bool, len(writes))
	for _, w := range writes {
		committed[w.Key] = true
	}
	for _, h := range tx.hooks {
		if committed[h.key] {
			h.fn(ctx)
		}
	}

	for _, ev := range events {
		for _, s := range l.subscribers {
			if err := s.Publish(ctx, ev); err != nil {
				log.Printf("ledger: subscriber failed for event %s in tx %s: %v", ev.Name, ev.TxID, err)
			}
		}
	}
	return opErr, nil
}

func (l *Ledger) durableWrites(writes []KV) []KV {
	var kept []KV
	for _, w := range writes {
		for _, prefix := range l.durable {
			if strings.HasPrefix(w.Key, prefix) {
				kept = append(kept, w)
				break
			}
		}
	}
	return kept
}

type txState struct {
	ctx     context.Context
	backend Backend
	txID    string
	ts      time.Time
	writes  map[string][]byte
	order   []string
	events  []Event
	reads   map[string]string
	ranges  map[string]map[string]string
	hooks   []commitHook
}

type commitHook struct {
	key string
	fn  func(context.Context)
}

func (t *txState) Context() context.Context { return t.ctx }
func (t *txState) TxID() string             { return t.txID }
func (t *txState) Timestamp() time.Time     { return t.ts }

func (t *txState) GetState(key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	if v, ok := t.writes[key]; ok {
		return append([]byte(nil), v...), nil
	}
	kv, err := t.backend.Get(t.ctx, key)
	if err != nil {
		return nil, err
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = kv.Version
	}
	return kv.Value, nil
}

func (t *txState) PutState(key string, value []byte) error {
	if key == "" {
		return errEmptyKey
	}
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *txState) GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error) {
	prefix, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}

	committed, err := t.backend.Range(t.ctx, prefix)
	if err != nil {
		return nil, err
	}
	if _, seen := t.ranges[prefix]; !seen {
		versions := make(map[string]string, len(committed))
		for _, kv := range committed {
			versions[kv.Key] = kv.Version
		}
		t.ranges[prefix] = versions
	}

	merged := make(map[string][]byte, len(committed))
	for _, kv := range committed {
		merged[kv.Key] = kv.Value
	}
	for k, v := range t.writes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}

	out := make([]KV, 0, len(merged))
	for k, v := range merged {
		out = append(out, KV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (t *txState) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name must not be empty")
	}
	t.events = append(t.events, Event{Name: name, Payload: payload, TxID: t.txID, Timestamp: t.ts})
	return nil
}

func (t *txState) OnCommit(key string, fn func(context.Context)) {
	t.hooks = append(t.hooks, commitHook{key: key, fn: fn})
}

func (t *txState) writeSet() []KV {
	out := make([]KV, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, KV{Key: k, Value: t.writes[k]})
	}
	return out
}
