package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]KV
	events []Event
}

func NewMemory() *Memory {
	return &Memory{data: map[string]KV{}}
}

func (m *Memory) Get(_ context.Context, key string) (KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kv, ok := m.data[key]
	if !ok {
		return KV{Key: key}, nil
	}
	return copyKV(kv), nil
}

func (m *Memory) Range(_ context.Context, prefix string) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []KV
	for k, kv := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyKV(kv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Commit(_ context.Context, cs Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := cs.Validate(
		func(keys []string) (map[string]string, error) {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				if kv, ok := m.data[k]; ok {
					out[k] = kv.Version
				}
			}
			return out, nil
		},
		func(prefix string) (map[string]string, error) {
			out := map[string]string{}
			for k, kv := range m.data {
				if strings.HasPrefix(k, prefix) {
					out[k] = kv.Version
				}
			}
			return out, nil
		},
	)
	if err != nil {
		return err
	}

	for _, w := range cs.Writes {
		m.data[w.Key] = KV{Key: w.Key, Value: append([]byte(nil), w.Value...), Version: cs.TxID}
	}
	m.events = append(m.events, cs.Events...)
	return nil
}

// Events returns every committed event in commit order.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

func copyKV(kv KV) KV {
	kv.Value = append([]byte(nil), kv.Value...)
	return kv
}
