package model

import "time"

// StateEntry is one committed ledger key.
type StateEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"type:bytea;"`
	TxID      string
	UpdatedAt time.Time
}

func (StateEntry) TableName() string {
	return "world_state"
}
