package ledger

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrConflict is returned by Backend.Commit when another commit changed state
// the invocation had read.
var ErrConflict = errors.New("ledger: read set changed by a concurrent commit")

// Changeset is one invocation as handed to a Backend.
type Changeset struct {
	TxID string
	// Reads maps every key read from the backend to the version observed.
	Reads map[string]string
	// Ranges maps every scanned prefix to the committed keys and versions
	// observed under it.
	Ranges map[string]map[string]string
	Writes []KV
	Events []Event
}

// ReadKeys returns the point-read keys in order.
func (cs Changeset) ReadKeys() []string {
	return slices.Sorted(maps.Keys(cs.Reads))
}

// Validate compares the read set against the backend's current versions.
// versions returns the present keys among the given ones; scan returns the
// keys under a prefix. Both map key to version.
func (cs Changeset) Validate(versions func(keys []string) (map[string]string, error), scan func(prefix string) (map[string]string, error)) error {
	if len(cs.Reads) > 0 {
		keys := cs.ReadKeys()
		current, err := versions(keys)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if current[k] != cs.Reads[k] {
				return fmt.Errorf("%w: key %s", ErrConflict, printableKey(k))
			}
		}
	}
	for _, prefix := range slices.Sorted(maps.Keys(cs.Ranges)) {
		current, err := scan(prefix)
		if err != nil {
			return err
		}
		if !maps.Equal(current, cs.Ranges[prefix]) {
			return fmt.Errorf("%w: range %s", ErrConflict, printableKey(prefix))
		}
	}
	return nil
}

func printableKey(k string) string {
	return strings.TrimSuffix(strings.ReplaceAll(k, separator, "/"), "/")
}
