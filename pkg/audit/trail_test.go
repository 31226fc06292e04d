package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

func newTrail(t *testing.T, opts ...TrailOption) (*Trail, *ledger.Ledger) {
	t.Helper()
	trail, err := NewTrail([]byte("audit-hmac-key"), opts...)
	require.NoError(t, err)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New(ledger.NewMemory(),
		ledger.WithDurable(DurableTypes()...),
		ledger.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return trail, l
}

func TestNewTrailRequiresKey(t *testing.T) {
	_, err := NewTrail(nil)
	assert.Error(t, err)
}

func TestRecordChainsEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetWriter(&buf)
	trail, l := newTrail(t, WithLogger(logger))
	ctx := context.Background()

	for _, action := range []string{"consent.grant", "protection.protect", "consent.revoke"} {
		require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
			_, err := trail.Record(st, Entry{Principal: "P1", Action: action, TargetResource: "R1", Success: true})
			return err
		}))
	}

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		all, err := trail.All(st)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Empty(t, all[0].PrevHash)
		assert.Equal(t, all[0].Hash, all[1].PrevHash)
		assert.Equal(t, all[1].Hash, all[2].PrevHash)
		assert.Equal(t, uint64(3), all[2].Seq)
		assert.NotEmpty(t, all[0].ID)
		assert.NoError(t, trail.VerifyChain(all))

		all[1].Details = map[string]string{"note": "edited"}
		assert.ErrorIs(t, trail.VerifyChain(all), ErrTampered)
		return nil
	}))

	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestRecordSurvivesFailedInvocation(t *testing.T) {
	trail, l := newTrail(t)
	ctx := context.Background()
	denied := errors.New("denied")

	err := l.Invoke(ctx, func(st ledger.State) error {
		_, err := trail.Record(st, Entry{Principal: "D2", Action: "protection.unprotect", TargetResource: "prot-1", Success: false})
		require.NoError(t, err)
		return denied
	})
	require.ErrorIs(t, err, denied)

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		entries, err := trail.ForResource(st, "prot-1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Success)
		return nil
	}))
}

func TestIndexes(t *testing.T) {
	trail, l := newTrail(t)
	ctx := context.Background()

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		for _, e := range []Entry{
			{Principal: "P1", Action: "a", TargetResource: "R1", Success: true},
			{Principal: "D1", Action: "b", TargetResource: "R1", Success: true},
			{Principal: "P1", Action: "c", TargetResource: "R2", Success: true},
		} {
			if _, err := trail.Record(st, e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		byResource, err := trail.ForResource(st, "R1")
		require.NoError(t, err)
		require.Len(t, byResource, 2)
		assert.Equal(t, "a", byResource[0].Action)
		assert.Equal(t, "b", byResource[1].Action)

		byPrincipal, err := trail.ForPrincipal(st, "P1")
		require.NoError(t, err)
		require.Len(t, byPrincipal, 2)
		assert.Equal(t, "c", byPrincipal[1].Action)
		return nil
	}))
}

func TestVerifyEntryRejectsForeignKey(t *testing.T) {
	trail, l := newTrail(t)
	var recorded Entry
	require.NoError(t, l.Invoke(context.Background(), func(st ledger.State) error {
		var err error
		recorded, err = trail.Record(st, Entry{Principal: "A1", Action: "key.revoke", TargetResource: "K1", Success: true})
		return err
	}))
	require.NoError(t, trail.VerifyEntry(recorded))

	other, err := NewTrail([]byte("another-key"))
	require.NoError(t, err)
	assert.ErrorIs(t, other.VerifyEntry(recorded), ErrTampered)
}

func TestOutcomeRecordsFailureKind(t *testing.T) {
	trail, l := newTrail(t)
	ctx := context.Background()
	denied := apperr.New(apperr.KindAccessDenied, "protection.unprotect", "requester is not the owner")

	err := l.Invoke(ctx, func(st ledger.State) error {
		return trail.Outcome(st, Entry{Principal: "D2", Action: "protection.unprotect", TargetResource: "prot-1"}, denied)
	})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		entries, err := trail.ForResource(st, "prot-1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Success)
		assert.Equal(t, "AccessDenied", entries[0].Details["error"])
		assert.Equal(t, "requester is not the owner", entries[0].Details["reason"])
		return nil
	}))
}

func TestOutcomeHidesUntaggedErrors(t *testing.T) {
	trail, l := newTrail(t)
	ctx := context.Background()

	_ = l.Invoke(ctx, func(st ledger.State) error {
		return trail.Outcome(st, Entry{Principal: "P1", Action: "keys.generate"}, errors.New("disk full at /var/secret"))
	})

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		entries, err := trail.ForPrincipal(st, "P1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Internal", entries[0].Details["error"])
		assert.NotContains(t, entries[0].Details, "reason")
		return nil
	}))
}

func TestTrailsSharingBackendKeepEveryEntry(t *testing.T) {
	trail, err := NewTrail([]byte("audit-hmac-key"))
	require.NoError(t, err)
	mem := ledger.NewMemory()
	app := ledger.New(mem, ledger.WithDurable(DurableTypes()...))
	maintenance := ledger.New(mem, ledger.WithDurable(DurableTypes()...))
	ctx := context.Background()

	first := true
	require.NoError(t, app.Invoke(ctx, func(st ledger.State) error {
		if _, err := trail.Record(st, Entry{Principal: "A", Action: "record.store", TargetResource: "R1", Success: true}); err != nil {
			return err
		}
		if first {
			first = false
			require.NoError(t, maintenance.Invoke(ctx, func(st ledger.State) error {
				_, err := trail.Record(st, Entry{Principal: "B", Action: "maintenance.sweep", Success: true})
				return err
			}))
		}
		return nil
	}))

	require.NoError(t, app.Invoke(ctx, func(st ledger.State) error {
		all, err := trail.All(st)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "B", all[0].Principal)
		assert.Equal(t, "A", all[1].Principal)
		assert.Equal(t, uint64(2), all[1].Seq)
		assert.NoError(t, trail.VerifyChain(all))
		return nil
	}))
}

type failingBackend struct {
	*ledger.Memory
}

func (failingBackend) Commit(context.Context, ledger.Changeset) error {
	return errors.New("database unavailable")
}

func TestMirrorSkipsUncommittedEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetWriter(&buf)
	trail, err := NewTrail([]byte("audit-hmac-key"), WithLogger(logger))
	require.NoError(t, err)
	l := ledger.New(failingBackend{ledger.NewMemory()}, ledger.WithDurable(DurableTypes()...))

	err = l.Invoke(context.Background(), func(st ledger.State) error {
		_, err := trail.Record(st, Entry{Principal: "D1", Action: "record.store", TargetResource: "R1", Success: true})
		return err
	})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
