package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RaceResult is the official finish of one entry. Rows for a race are replaced
// wholesale when results are corrected.
type RaceResult struct {
	bun.BaseModel `bun:"table:race_results,alias:rr"`

	ID             uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	RaceID         uuid.UUID `bun:"race_id,type:uuid,notnull,unique:race_results_no_dupes" json:"race_id"`
	RaceEntryID    uuid.UUID `bun:"race_entry_id,type:uuid,notnull,unique:race_results_no_dupes" json:"race_entry_id"`
	FinishPosition int       `bun:"finish_position,notnull" json:"finish_position"`
	FinishTime     *string   `bun:"finish_time" json:"finish_time,omitempty"`
	Margin         *string   `bun:"margin" json:"margin,omitempty"`
	Last3F         *float64  `bun:"last_3f" json:"last_3f,omitempty"`
}

// Bet types carried in the payout table.
const (
	BetWin             = "win"
	BetPlace           = "place"
	BetBracketQuinella = "bracket_quinella"
	BetQuinella        = "quinella"
	BetWide            = "wide"
	BetExacta          = "exacta"
	BetTrio            = "trio"
	BetTrifecta        = "trifecta"
)

// Payout is one official dividend row. Amount is yen returned per 100 staked.
type Payout struct {
	bun.BaseModel `bun:"table:payouts,alias:p"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	RaceID       uuid.UUID `bun:"race_id,type:uuid,notnull,unique:payouts_no_dupes" json:"race_id"`
	BetType      string    `bun:"bet_type,notnull,unique:payouts_no_dupes" json:"bet_type"`
	Combination  string    `bun:"combination,notnull,unique:payouts_no_dupes" json:"combination"`
	PayoutAmount int64     `bun:"payout_amount,notnull" json:"payout_amount"`
	Popularity   *int      `bun:"popularity" json:"popularity,omitempty"`
}
