package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Ledger object types owned by the trail.
const (
	entryType      = "audit"
	headType       = "audit~head"
	resourceIndex  = "audit~resource"
	principalIndex = "audit~principal"
)

// DurableTypes lists the object types that must survive failed invocations.
func DurableTypes() []string {
	return []string{entryType, headType, resourceIndex, principalIndex}
}

// ErrTampered is returned when an entry's hash or MAC does not verify.
var ErrTampered = errors.New("audit entry failed verification")

// Trail appends hash-chained, HMAC-bound entries to the ledger.
type Trail struct {
	key    []byte
	logger *Logger
	store  *Store

	mu      sync.Mutex
	entropy io.Reader
}

type TrailOption func(*Trail)

// WithLogger mirrors every entry to an RFC5424 logger.
func WithLogger(l *Logger) TrailOption {
	return func(t *Trail) { t.logger = l }
}

// WithStore mirrors every entry to a SQL message store.
func WithStore(s *Store) TrailOption {
	return func(t *Trail) { t.store = s }
}

// NewTrail returns a trail signing entries with hmacKey.
func NewTrail(hmacKey []byte, opts ...TrailOption) (*Trail, error) {
	if len(hmacKey) == 0 {
		return nil, errors.New("audit: hmac key is required")
	}
	t := &Trail{
		key:     append([]byte(nil), hmacKey...),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Record appends e to the trail within st. ID, Timestamp, PrevHash, Hash and
// MAC are assigned here.
func (t *Trail) Record(st ledger.State, e Entry) (Entry, error) {
	if e.Principal == "" {
		e.Principal = "-"
	}
	if e.TargetResource == "" {
		e.TargetResource = "-"
	}
	e.Timestamp = st.Timestamp()
	if e.Details != nil && len(e.Details) == 0 {
		e.Details = nil
	}

	id, err := t.newID(e.Timestamp)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id

	headKey, err := ledger.CreateCompositeKey(headType, []string{"chain"})
	if err != nil {
		return Entry{}, err
	}
	var head chainHead
	if _, err := ledger.GetJSON(st, headKey, &head); err != nil {
		return Entry{}, err
	}
	e.Seq = head.Seq + 1
	e.PrevHash = head.Hash

	e.Hash, err = hashing.ChainHash(e.PrevHash, e.chained())
	if err != nil {
		return Entry{}, err
	}
	e.MAC = hashing.HMAC([]byte(e.Hash), t.key)

	entryKey, err := t.put(st, e)
	if err != nil {
		return Entry{}, err
	}
	if err := ledger.PutJSON(st, headKey, chainHead{Seq: e.Seq, Hash: e.Hash}); err != nil {
		return Entry{}, err
	}

	// mirrors only ever see entries the chain holds
	st.OnCommit(entryKey, func(context.Context) { t.mirror(e) })
	return e, nil
}

func (t *Trail) mirror(e Entry) {
	if t.logger != nil {
		t.logger.Log(e)
	}
	if t.store != nil {
		if err := t.store.Save(e); err != nil {
			log.Printf("audit: failed to mirror entry %s: %v", e.ID, err)
		}
	}
}

// Outcome records e as the result of an operation that returned opErr and
// hands opErr back. Failures carry the error kind and reason. A failure to
// record is joined onto opErr so it is never silently lost.
func (t *Trail) Outcome(st ledger.State, e Entry, opErr error) error {
	e.Success = opErr == nil
	if opErr != nil {
		details := make(map[string]string, len(e.Details)+2)
		for k, v := range e.Details {
			details[k] = v
		}
		var ae *apperr.Error
		if errors.As(opErr, &ae) {
			details["error"] = ae.Kind.String()
			details["reason"] = ae.Reason
		} else {
			details["error"] = "Internal"
		}
		e.Details = details
	}
	if _, err := t.Record(st, e); err != nil {
		return errors.Join(opErr, fmt.Errorf("audit: %w", err))
	}
	return opErr
}

type chainHead struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func (t *Trail) put(st ledger.State, e Entry) (string, error) {
	key, err := ledger.CreateCompositeKey(entryType, []string{seqKey(e.Seq)})
	if err != nil {
		return "", err
	}
	if err := ledger.PutJSON(st, key, e); err != nil {
		return "", err
	}

	for indexName, owner := range map[string]string{resourceIndex: e.TargetResource, principalIndex: e.Principal} {
		indexKey, err := ledger.CreateCompositeKey(indexName, []string{owner, seqKey(e.Seq)})
		if err != nil {
			return "", fmt.Errorf("index %s: %w", indexName, err)
		}
		if err := st.PutState(indexKey, []byte(seqKey(e.Seq))); err != nil {
			return "", err
		}
	}
	return key, nil
}

func (t *Trail) newID(ts time.Time) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(ts), t.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ForResource returns the entries recorded against target, oldest first.
func (t *Trail) ForResource(st ledger.State, target string) ([]Entry, error) {
	return t.indexed(st, resourceIndex, target)
}

// ForPrincipal returns the entries recorded for principal, oldest first.
func (t *Trail) ForPrincipal(st ledger.State, principal string) ([]Entry, error) {
	return t.indexed(st, principalIndex, principal)
}

func (t *Trail) indexed(st ledger.State, indexName, owner string) ([]Entry, error) {
	kvs, err := st.GetStateByPartialCompositeKey(indexName, []string{owner})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		e, err := t.get(st, string(kv.Value))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *Trail) get(st ledger.State, seq string) (Entry, error) {
	key, err := ledger.CreateCompositeKey(entryType, []string{seq})
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	found, err := ledger.GetJSON(st, key, &e)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, fmt.Errorf("audit entry %s not found", seq)
	}
	return e, nil
}

// All returns the whole trail, oldest first.
func (t *Trail) All(st ledger.State) ([]Entry, error) {
	kvs, err := st.GetStateByPartialCompositeKey(entryType, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// VerifyEntry checks that e's hash covers its content and its MAC was
// produced with this trail's key.
func (t *Trail) VerifyEntry(e Entry) error {
	h, err := hashing.ChainHash(e.PrevHash, e.chained())
	if err != nil {
		return err
	}
	if h != e.Hash || !hashing.VerifyHMAC([]byte(e.Hash), t.key, e.MAC) {
		return fmt.Errorf("%w: %s", ErrTampered, e.ID)
	}
	return nil
}

// VerifyChain checks every entry and the links between consecutive entries.
// entries must be the full trail in order, as returned by All.
func (t *Trail) VerifyChain(entries []Entry) error {
	links := make([]hashing.ChainLink, len(entries))
	for i, e := range entries {
		if err := t.VerifyEntry(e); err != nil {
			return err
		}
		links[i] = hashing.ChainLink{PrevHash: e.PrevHash, Hash: e.Hash, Payload: e.chained()}
	}
	if len(entries) > 0 && entries[0].PrevHash != "" {
		return fmt.Errorf("%w: %s does not start the chain", ErrTampered, entries[0].ID)
	}
	if i := hashing.VerifyChain(links); i >= 0 {
		return fmt.Errorf("%w: chain broken at %s", ErrTampered, entries[i].ID)
	}
	return nil
}
