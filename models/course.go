package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Course represents a racecourse.
type Course struct {
	bun.BaseModel `bun:"table:courses,alias:c"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	Direction string    `bun:"direction,notnull,default:''" json:"direction"`
	Surface   string    `bun:"surface,notnull,default:''" json:"surface"`
}
