package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profile holds a user's leaderboard statistics. Every scoring column is a cache
// of the user's settled votes and is only written by aggregate recomputation.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:pf"`

	UserID           uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	DisplayName      string    `bun:"display_name,notnull,default:''" json:"display_name"`
	CumulativePoints int       `bun:"cumulative_points,notnull,default:0" json:"cumulative_points"`
	MonthlyPoints    int       `bun:"monthly_points,notnull,default:0" json:"monthly_points"`
	TotalVotes       int       `bun:"total_votes,notnull,default:0" json:"total_votes"`
	WinHits          int       `bun:"win_hits,notnull,default:0" json:"win_hits"`
	PlaceHits        int       `bun:"place_hits,notnull,default:0" json:"place_hits"`
	DangerHits       int       `bun:"danger_hits,notnull,default:0" json:"danger_hits"`
	CurrentStreak    int       `bun:"current_streak,notnull,default:0" json:"current_streak"`
	BestStreak       int       `bun:"best_streak,notnull,default:0" json:"best_streak"`
	RankID           string    `bun:"rank_id,notnull,default:'beginner_1'" json:"rank_id"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
