package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VoteStatus is the settlement state of a vote.
type VoteStatus string

const (
	VotePending VoteStatus = "pending"
	VoteSettled VoteStatus = "settled"
)

// PickType is the role a picked horse plays in a vote.
type PickType string

const (
	PickFavorite PickType = "favorite"
	PickRival    PickType = "rival"
	PickDanger   PickType = "danger"
)

// Vote is one user's three picks for one race.
type Vote struct {
	bun.BaseModel `bun:"table:votes,alias:v"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID  `bun:"user_id,type:uuid,notnull,unique:votes_one_per_race" json:"user_id"`
	RaceID       uuid.UUID  `bun:"race_id,type:uuid,notnull,unique:votes_one_per_race" json:"race_id"`
	Status       VoteStatus `bun:"status,notnull,default:'pending'" json:"status"`
	EarnedPoints int        `bun:"earned_points,notnull,default:0" json:"earned_points"`
	IsPerfect    bool       `bun:"is_perfect,notnull,default:false" json:"is_perfect"`
	SettledAt    *time.Time `bun:"settled_at" json:"settled_at,omitempty"`
	LikeCount    int        `bun:"like_count,notnull,default:0" json:"like_count"`
	CopyCount    int        `bun:"copy_count,notnull,default:0" json:"copy_count"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	Picks []*VotePick `bun:"rel:has-many,join:id=vote_id" json:"picks,omitempty"`
}

// VotePick is one pick of a vote. IsHit stays nil until the vote is settled.
type VotePick struct {
	bun.BaseModel `bun:"table:vote_picks,alias:vp"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	VoteID       uuid.UUID `bun:"vote_id,type:uuid,notnull" json:"vote_id"`
	PickType     PickType  `bun:"pick_type,notnull" json:"pick_type"`
	RaceEntryID  uuid.UUID `bun:"race_entry_id,type:uuid,notnull" json:"race_entry_id"`
	IsHit        *bool     `bun:"is_hit" json:"is_hit,omitempty"`
	PointsEarned int       `bun:"points_earned,notnull,default:0" json:"points_earned"`
}

// PointTransaction itemises how a settled vote earned its points.
type PointTransaction struct {
	bun.BaseModel `bun:"table:point_transactions,alias:pt"`

	ID          uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	VoteID      uuid.UUID `bun:"vote_id,type:uuid,notnull" json:"vote_id"`
	RaceID      uuid.UUID `bun:"race_id,type:uuid,notnull" json:"race_id"`
	Amount      int       `bun:"amount,notnull" json:"amount"`
	Reason      string    `bun:"reason,notnull" json:"reason"`
	Description string    `bun:"description,notnull,default:''" json:"description"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
