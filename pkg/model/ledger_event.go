package model

import "time"

// LedgerEvent is a committed domain event kept for replay by subscribers.
type LedgerEvent struct {
	ID        string `gorm:"primaryKey"`
	TxID      string
	Name      string
	Payload   []byte `gorm:"type:bytea;"`
	CreatedAt time.Time
}

func (LedgerEvent) TableName() string {
	return "ledger_events"
}
