// Package gormledger stores ledger state in PostgreSQL through GORM.
package gormledger

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/model"
)

var _ ledger.Backend = (*Backend)(nil)

// Backend implements ledger.Backend over the world_state and ledger_events tables.
type Backend struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// commitLock is the advisory lock key serializing commits from every
// process sharing the database.
const commitLock int64 = 0x7068_6976_6c65_6467

func (b *Backend) Get(ctx context.Context, key string) (ledger.KV, error) {
	var entry model.StateEntry
	tx := b.db.WithContext(ctx).Where("key = ?", key).First(&entry)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return ledger.KV{Key: key}, nil
		}
		return ledger.KV{}, tx.Error
	}
	return ledger.KV{Key: entry.Key, Value: entry.Value, Version: entry.TxID}, nil
}

func (b *Backend) Range(ctx context.Context, prefix string) ([]ledger.KV, error) {
	var entries []model.StateEntry
	tx := b.db.WithContext(ctx).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("key").
		Find(&entries)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make([]ledger.KV, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledger.KV{Key: e.Key, Value: e.Value, Version: e.TxID})
	}
	// database collation may not order the separator bytewise
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Commit validates the read set and applies cs in one database transaction.
// On PostgreSQL the transaction first takes a transaction-scoped advisory
// lock, so validation and writes of concurrent commits never interleave.
func (b *Backend) Commit(ctx context.Context, cs ledger.Changeset) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", commitLock).Error; err != nil {
				return err
			}
		}

		err := cs.Validate(
			func(keys []string) (map[string]string, error) {
				return versions(tx.Where("key IN ?", keys))
			},
			func(prefix string) (map[string]string, error) {
				return versions(tx.Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%"))
			},
		)
		if err != nil {
			return err
		}

		if len(cs.Writes) > 0 {
			entries := make([]model.StateEntry, 0, len(cs.Writes))
			for _, w := range cs.Writes {
				entries = append(entries, model.StateEntry{Key: w.Key, Value: w.Value, TxID: cs.TxID})
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "tx_id", "updated_at"}),
			}).Create(&entries).Error
			if err != nil {
				return err
			}
		}

		if len(cs.Events) > 0 {
			rows := make([]model.LedgerEvent, 0, len(cs.Events))
			for _, ev := range cs.Events {
				rows = append(rows, model.LedgerEvent{
					ID:        ulid.Make().String(),
					TxID:      ev.TxID,
					Name:      ev.Name,
					Payload:   ev.Payload,
					CreatedAt: ev.Timestamp,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func versions(q *gorm.DB) (map[string]string, error) {
	var rows []model.StateEntry
	if err := q.Select("key", "tx_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.TxID
	}
	return out, nil
}

// Events lists committed events with ids after the given cursor, oldest first.
func (b *Backend) Events(ctx context.Context, after string, limit int) ([]model.LedgerEvent, error) {
	var rows []model.LedgerEvent
	q := b.db.WithContext(ctx).Order("id")
	if after != "" {
		q = q.Where("id > ?", after)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CheckConnectivity pings the underlying database.
func (b *Backend) CheckConnectivity(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
