package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSubscriber struct {
	mock.Mock
}

func (m *mockSubscriber) Publish(ctx context.Context, event Event) error {
	return m.Called(ctx, event).Error(0)
}

func mustKey(t *testing.T, objectType string, attrs ...string) string {
	k, err := CreateCompositeKey(objectType, attrs)
	require.NoError(t, err)
	return k
}

func TestCompositeKeys(t *testing.T) {
	k := mustKey(t, "consent~patient", "P1", "C1")

	objectType, attrs, err := SplitCompositeKey(k)
	require.NoError(t, err)
	assert.Equal(t, "consent~patient", objectType)
	assert.Equal(t, []string{"P1", "C1"}, attrs)

	_, err = CreateCompositeKey("", nil)
	assert.Error(t, err)
	_, err = CreateCompositeKey("record", []string{"a\x1fb"})
	assert.Error(t, err)
	_, err = CreateCompositeKey("record", []string{""})
	assert.Error(t, err)
	_, _, err = SplitCompositeKey("plain")
	assert.Error(t, err)
}

func TestInvokeCommitsOnSuccess(t *testing.T) {
	mem := NewMemory()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := New(mem, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	err := l.Invoke(ctx, func(st State) error {
		assert.Equal(t, fixed, st.Timestamp())
		assert.NotEmpty(t, st.TxID())
		require.NoError(t, st.PutState(mustKey(t, "record", "R1"), []byte("v1")))

		// read your own writes
		v, err := st.GetState(mustKey(t, "record", "R1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)
		return EmitJSON(st, "MedicalDataStored", map[string]string{"recordId": "R1"})
	})
	require.NoError(t, err)

	kv, err := mem.Get(ctx, mustKey(t, "record", "R1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), kv.Value)
	assert.NotEmpty(t, kv.Version)

	events := mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "MedicalDataStored", events[0].Name)
	assert.JSONEq(t, `{"recordId":"R1"}`, string(events[0].Payload))
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestInvokeKeepsOnlyDurableWritesOnFailure(t *testing.T) {
	mem := NewMemory()
	l := New(mem, WithDurable("audit"))
	ctx := context.Background()
	boom := errors.New("boom")

	err := l.Invoke(ctx, func(st State) error {
		require.NoError(t, st.PutState(mustKey(t, "record", "R1"), []byte("v1")))
		require.NoError(t, st.PutState(mustKey(t, "audit", "A1"), []byte("entry")))
		require.NoError(t, st.SetEvent("MedicalDataStored", nil))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	kv, _ := mem.Get(ctx, mustKey(t, "record", "R1"))
	assert.Nil(t, kv.Value)
	kv, _ = mem.Get(ctx, mustKey(t, "audit", "A1"))
	assert.Equal(t, []byte("entry"), kv.Value)
	assert.Empty(t, mem.Events())
}

func TestRangeMergesPendingWrites(t *testing.T) {
	mem := NewMemory()
	l := New(mem)
	ctx := context.Background()

	require.NoError(t, l.Invoke(ctx, func(st State) error {
		require.NoError(t, st.PutState(mustKey(t, "owner~key", "U1", "K1"), []byte("K1")))
		require.NoError(t, st.PutState(mustKey(t, "owner~key", "U2", "K9"), []byte("K9")))
		return nil
	}))

	require.NoError(t, l.Invoke(ctx, func(st State) error {
		require.NoError(t, st.PutState(mustKey(t, "owner~key", "U1", "K2"), []byte("K2")))
		require.NoError(t, st.PutState(mustKey(t, "owner~key", "U1", "K1"), []byte("K1b")))

		kvs, err := st.GetStateByPartialCompositeKey("owner~key", []string{"U1"})
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		assert.Equal(t, []byte("K1b"), kvs[0].Value)
		assert.Equal(t, []byte("K2"), kvs[1].Value)
		return nil
	}))
}

func TestGetMissingKey(t *testing.T) {
	l := New(NewMemory())
	require.NoError(t, l.Invoke(context.Background(), func(st State) error {
		v, err := st.GetState(mustKey(t, "record", "nope"))
		assert.NoError(t, err)
		assert.Nil(t, v)

		var out map[string]string
		found, err := GetJSON(st, mustKey(t, "record", "nope"), &out)
		assert.NoError(t, err)
		assert.False(t, found)

		_, err = st.GetState("")
		assert.Error(t, err)
		return nil
	}))
}

func TestSubscribersNotifiedAfterCommit(t *testing.T) {
	sub := &mockSubscriber{}
	sub.On("Publish", mock.Anything, mock.MatchedBy(func(e Event) bool { return e.Name == "KeyRotated" })).
		Return(errors.New("broker down")).Once()

	l := New(NewMemory(), WithSubscriber(sub))
	err := l.Invoke(context.Background(), func(st State) error {
		return st.SetEvent("KeyRotated", []byte(`{"keyId":"K1"}`))
	})

	// subscriber failures never fail the invocation
	require.NoError(t, err)
	sub.AssertExpectations(t)
}

func TestSubscribersSkippedOnFailure(t *testing.T) {
	sub := &mockSubscriber{}
	l := New(NewMemory())
	l.Subscribe(sub)

	err := l.Invoke(context.Background(), func(st State) error {
		_ = st.SetEvent("KeyRotated", nil)
		return errors.New("denied")
	})
	require.Error(t, err)
	sub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// increment reads a counter key and writes it back plus one.
func increment(t *testing.T, st State, key string) int {
	var n int
	_, err := GetJSON(st, key, &n)
	require.NoError(t, err)
	n++
	require.NoError(t, PutJSON(st, key, n))
	return n
}

func TestLedgersSharingBackendDoNotLoseWrites(t *testing.T) {
	mem := NewMemory()
	a, b := New(mem), New(mem)
	ctx := context.Background()
	counter := mustKey(t, "audit~head", "chain")

	attempts := 0
	err := a.Invoke(ctx, func(st State) error {
		attempts++
		n := increment(t, st, counter)
		if attempts == 1 {
			// another process commits between our read and our commit
			require.NoError(t, b.Invoke(ctx, func(st State) error {
				increment(t, st, counter)
				return nil
			}))
			assert.Equal(t, 1, n)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	kv, err := mem.Get(ctx, counter)
	require.NoError(t, err)
	assert.Equal(t, "2", string(kv.Value))
}

func TestRangeReadConflictsWithConcurrentInsert(t *testing.T) {
	mem := NewMemory()
	a, b := New(mem), New(mem)
	ctx := context.Background()

	var seen []int
	err := a.Invoke(ctx, func(st State) error {
		kvs, err := st.GetStateByPartialCompositeKey("consent~patient", []string{"P1"})
		require.NoError(t, err)
		seen = append(seen, len(kvs))
		if len(seen) == 1 {
			require.NoError(t, b.Invoke(ctx, func(st State) error {
				return st.PutState(mustKey(t, "consent~patient", "P1", "C1"), []byte("C1"))
			}))
		}
		return st.PutState(mustKey(t, "summary", "P1"), []byte("x"))
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestConflictGivesUpAfterMaxAttempts(t *testing.T) {
	mem := NewMemory()
	a, b := New(mem), New(mem)
	ctx := context.Background()
	counter := mustKey(t, "counter", "c")

	attempts := 0
	err := a.Invoke(ctx, func(st State) error {
		attempts++
		increment(t, st, counter)
		return b.Invoke(ctx, func(st State) error {
			increment(t, st, counter)
			return nil
		})
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxAttempts, attempts)

	kv, _ := mem.Get(ctx, counter)
	assert.Equal(t, "5", string(kv.Value))
}

func TestOnCommitRunsForCommittedKeysOnly(t *testing.T) {
	mem := NewMemory()
	l := New(mem, WithDurable("audit"))
	ctx := context.Background()

	var ran []string
	hook := func(name string) func(context.Context) {
		return func(context.Context) { ran = append(ran, name) }
	}

	require.NoError(t, l.Invoke(ctx, func(st State) error {
		k := mustKey(t, "record", "R1")
		require.NoError(t, st.PutState(k, []byte("v1")))
		st.OnCommit(k, hook("record"))
		return nil
	}))
	assert.Equal(t, []string{"record"}, ran)

	ran = nil
	err := l.Invoke(ctx, func(st State) error {
		rk, ak := mustKey(t, "record", "R2"), mustKey(t, "audit", "A1")
		require.NoError(t, st.PutState(rk, []byte("v2")))
		require.NoError(t, st.PutState(ak, []byte("entry")))
		st.OnCommit(rk, hook("record"))
		st.OnCommit(ak, hook("audit"))
		return errors.New("denied")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"audit"}, ran)
}
