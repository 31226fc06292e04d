// Package ledgertest wires an in-memory ledger with a controllable clock for
// tests of the components built on top of it.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Epoch is the time every test clock starts at.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced time source. Each reading moves it forward by
// one millisecond so consecutive invocations never share a timestamp.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles the pieces most component tests need.
type Env struct {
	Ledger  *ledger.Ledger
	Backend *ledger.Memory
	Trail   *audit.Trail
	Clock   *Clock
	DataKey []byte
}

// New returns an Env whose ledger keeps audit writes of failed invocations.
func New(t testing.TB) *Env {
	t.Helper()
	clock := NewClock(Epoch)
	backend := ledger.NewMemory()
	trail, err := audit.NewTrail([]byte("test-audit-hmac-key"))
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	return &Env{
		Ledger: ledger.New(backend,
			ledger.WithDurable(audit.DurableTypes()...),
			ledger.WithClock(clock.Now),
		),
		Backend: backend,
		Trail:   trail,
		Clock:   clock,
		DataKey: []byte("0123456789abcdef0123456789abcdef"),
	}
}

// Invoke runs fn in one ledger invocation and returns its error.
func (e *Env) Invoke(fn func(ledger.State) error) error {
	return e.Ledger.Invoke(context.Background(), fn)
}

// Audit returns the full audit trail, oldest first.
func (e *Env) Audit(t testing.TB) []audit.Entry {
	t.Helper()
	var entries []audit.Entry
	err := e.Invoke(func(st ledger.State) error {
		var err error
		entries, err = e.Trail.All(st)
		return err
	})
	if err != nil {
		t.Fatalf("read audit trail: %v", err)
	}
	return entries
}
