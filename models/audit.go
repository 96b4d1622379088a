package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettlementAudit records every settle and resettle invocation.
type SettlementAudit struct {
	bun.BaseModel `bun:"table:settlement_audits,alias:sa"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	RaceID       uuid.UUID `bun:"race_id,type:uuid,notnull" json:"race_id"`
	Action       string    `bun:"action,notnull" json:"action"`
	Actor        string    `bun:"actor,notnull" json:"actor"`
	SettledCount int       `bun:"settled_count,notnull,default:0" json:"settled_count"`
	FailedCount  int       `bun:"failed_count,notnull,default:0" json:"failed_count"`
	Error        *string   `bun:"error" json:"error,omitempty"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
