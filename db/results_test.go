package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/votesettle/models"
)

func TestValidateResults(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	entries := []uuid.UUID{a, b}

	tests := []struct {
		name    string
		results []*models.RaceResult
		payouts []*models.Payout
		wantErr string
	}{
		{
			name:    "valid",
			results: []*models.RaceResult{{RaceEntryID: a, FinishPosition: 1}, {RaceEntryID: b, FinishPosition: 2}},
			payouts: []*models.Payout{{BetType: models.BetWin, Combination: "1", PayoutAmount: 350}},
		},
		{
			name:    "dead heat is allowed",
			results: []*models.RaceResult{{RaceEntryID: a, FinishPosition: 1}, {RaceEntryID: b, FinishPosition: 1}},
		},
		{
			name:    "empty",
			wantErr: "no results",
		},
		{
			name:    "foreign entry",
			results: []*models.RaceResult{{RaceEntryID: uuid.New(), FinishPosition: 1}},
			wantErr: "is not in this race",
		},
		{
			name:    "duplicate entry",
			results: []*models.RaceResult{{RaceEntryID: a, FinishPosition: 1}, {RaceEntryID: a, FinishPosition: 2}},
			wantErr: "listed twice",
		},
		{
			name:    "zero position",
			results: []*models.RaceResult{{RaceEntryID: a, FinishPosition: 0}},
			wantErr: "finish_position must be positive",
		},
		{
			name:    "bad payout",
			results: []*models.RaceResult{{RaceEntryID: a, FinishPosition: 1}},
			payouts: []*models.Payout{{BetType: "pick6", Combination: "1", PayoutAmount: 100}},
			wantErr: `unknown bet_type "pick6"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResults(entries, tt.results, tt.payouts)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidResults)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
