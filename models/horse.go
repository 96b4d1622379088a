package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Horse represents a racehorse.
type Horse struct {
	bun.BaseModel `bun:"table:horses,alias:h"`

	ID   uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	Name string    `bun:"name,notnull,unique" json:"name"`
}
