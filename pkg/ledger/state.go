package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// KV is one key-value pair. Version is the id of the transaction that last
// wrote the key, empty when the key is absent.
type KV struct {
	Key     string
	Value   []byte
	Version string
}

// Event is a domain event emitted by a committed invocation. Payloads carry
// correlation fields only.
type Event struct {
	Name      string
	Payload   []byte
	TxID      string
	Timestamp time.Time
}

// State is the view an invocation has of the ledger.
type State interface {
	Context() context.Context
	TxID() string
	Timestamp() time.Time
	// GetState returns nil, nil when the key is absent.
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	// GetStateByPartialCompositeKey lists every key starting with the given
	// object type and leading attributes, in key order.
	GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error)
	SetEvent(name string, payload []byte) error
	// OnCommit runs fn once the invocation has committed a write to key.
	// fn never runs for a key that was discarded.
	OnCommit(key string, fn func(context.Context))
}

// Backend persists committed state.
type Backend interface {
	// Get returns the committed value and version of key. An absent key
	// yields a nil Value and an empty Version.
	Get(ctx context.Context, key string) (KV, error)
	// Range returns every committed key starting with prefix, in key order.
	Range(ctx context.Context, prefix string) ([]KV, error)
	// Commit applies cs atomically. It fails with ErrConflict when anything
	// in the read set changed after it was read.
	Commit(ctx context.Context, cs Changeset) error
}

const separator = "\x1f"

var errEmptyKey = errors.New("key must not be empty")

// CreateCompositeKey joins objectType and attributes into a range-scannable key.
func CreateCompositeKey(objectType string, attributes []string) (string, error) {
	if err := validateKeyPart(objectType); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(objectType)
	b.WriteString(separator)
	for _, a := range attributes {
		if err := validateKeyPart(a); err != nil {
			return "", err
		}
		b.WriteString(a)
		b.WriteString(separator)
	}
	return b.String(), nil
}

// SplitCompositeKey reverses CreateCompositeKey.
func SplitCompositeKey(key string) (string, []string, error) {
	if !strings.HasSuffix(key, separator) {
		return "", nil, errors.New("not a composite key")
	}
	parts := strings.Split(strings.TrimSuffix(key, separator), separator)
	return parts[0], parts[1:], nil
}

func validateKeyPart(s string) error {
	if s == "" {
		return errEmptyKey
	}
	if strings.Contains(s, separator) {
		return errors.New("key part contains the reserved separator")
	}
	return nil
}

// GetJSON reads key into v. found is false when the key is absent.
func GetJSON(st State, key string, v any) (bool, error) {
	b, err := st.GetState(key)
	if err != nil || b == nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

// PutJSON stores v under key as JSON.
func PutJSON(st State, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.PutState(key, b)
}

// EmitJSON emits an event with v as its JSON payload.
func EmitJSON(st State, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.SetEvent(name, b)
}
