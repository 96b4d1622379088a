package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Notification types written by settlement.
const (
	NotificationRankUp      = "rank_up"
	NotificationVoteSettled = "vote_settled"
)

// Notification is an append-only message for a user. Delivery happens elsewhere.
// A vote gets at most one vote_settled notification, however often it is settled.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID    uuid.UUID  `bun:"user_id,type:uuid,notnull" json:"user_id"`
	VoteID    *uuid.UUID `bun:"vote_id,type:uuid" json:"vote_id,omitempty"`
	Type      string     `bun:"type,notnull" json:"type"`
	Title     string     `bun:"title,notnull" json:"title"`
	Body      string     `bun:"body,notnull,default:''" json:"body"`
	Link      *string    `bun:"link" json:"link,omitempty"`
	IsRead    bool       `bun:"is_read,notnull,default:false" json:"is_read"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
