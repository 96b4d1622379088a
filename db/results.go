package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/settlement"
)

// ErrInvalidResults wraps every validation failure of a result submission.
var ErrInvalidResults = errors.New("invalid results")

// ReplaceResults swaps a race's official results and payouts for new ones in
// one transaction and closes voting if it was still open. It refuses while a
// settlement pass owns the race.
func (s *Store) ReplaceResults(ctx context.Context, raceID uuid.UUID, results []*models.RaceResult, payouts []*models.Payout) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.ReplaceResults: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	race, err := lockRace(ctx, tx, raceID)
	if err != nil {
		return err
	}
	switch race.Status {
	case models.RaceSettling:
		return &settlement.AlreadySettlingError{RaceID: raceID}
	case models.RaceScheduled:
		return &settlement.RaceStatusError{
			RaceID: raceID,
			Status: race.Status,
			Want:   []models.RaceStatus{models.RaceVotingOpen, models.RaceVotingClosed, models.RaceFinished},
		}
	}

	var entryIDs []uuid.UUID
	err = tx.NewSelect().Model((*models.RaceEntry)(nil)).Column("id").Where("race_id = ?", raceID).Scan(ctx, &entryIDs)
	if err != nil {
		return fmt.Errorf("db.ReplaceResults: entries: %w", err)
	}
	if err := ValidateResults(entryIDs, results, payouts); err != nil {
		return err
	}
	for _, r := range results {
		r.ID = uuid.Nil
		r.RaceID = raceID
	}
	for _, p := range payouts {
		p.ID = uuid.Nil
		p.RaceID = raceID
	}

	if _, err := tx.NewDelete().Model((*models.RaceResult)(nil)).Where("race_id = ?", raceID).Exec(ctx); err != nil {
		return fmt.Errorf("db.ReplaceResults: clear results: %w", err)
	}
	if _, err := tx.NewDelete().Model((*models.Payout)(nil)).Where("race_id = ?", raceID).Exec(ctx); err != nil {
		return fmt.Errorf("db.ReplaceResults: clear payouts: %w", err)
	}
	if _, err := tx.NewInsert().Model(&results).Exec(ctx); err != nil {
		return fmt.Errorf("db.ReplaceResults: results: %w", err)
	}
	if len(payouts) > 0 {
		if _, err := tx.NewInsert().Model(&payouts).Exec(ctx); err != nil {
			return fmt.Errorf("db.ReplaceResults: payouts: %w", err)
		}
	}
	if race.Status == models.RaceVotingOpen {
		_, err := tx.NewUpdate().Model((*models.Race)(nil)).
			Set("status = ?", models.RaceVotingClosed).
			Where("id = ?", raceID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("db.ReplaceResults: close voting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db.ReplaceResults: commit: %w", err)
	}
	committed = true
	return nil
}

// ValidateResults checks a submission against the race's entries: at least one
// result, every entry known and listed once, positions positive, payout rows
// typed and non-negative.
func ValidateResults(entryIDs []uuid.UUID, results []*models.RaceResult, payouts []*models.Payout) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: no results", ErrInvalidResults)
	}
	known := make(map[uuid.UUID]bool, len(entryIDs))
	for _, id := range entryIDs {
		known[id] = true
	}
	var errs []error
	seen := make(map[uuid.UUID]bool, len(results))
	for i, r := range results {
		switch {
		case !known[r.RaceEntryID]:
			errs = append(errs, fmt.Errorf("results[%d]: entry %s is not in this race", i, r.RaceEntryID))
		case seen[r.RaceEntryID]:
			errs = append(errs, fmt.Errorf("results[%d]: entry %s listed twice", i, r.RaceEntryID))
		}
		seen[r.RaceEntryID] = true
		if r.FinishPosition <= 0 {
			errs = append(errs, fmt.Errorf("results[%d]: finish_position must be positive", i))
		}
	}
	for i, p := range payouts {
		if !betTypes[p.BetType] {
			errs = append(errs, fmt.Errorf("payouts[%d]: unknown bet_type %q", i, p.BetType))
		}
		if p.Combination == "" {
			errs = append(errs, fmt.Errorf("payouts[%d]: combination is required", i))
		}
		if p.PayoutAmount < 0 {
			errs = append(errs, fmt.Errorf("payouts[%d]: payout_amount must not be negative", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidResults, errors.Join(errs...))
	}
	return nil
}

var betTypes = map[string]bool{
	models.BetWin:             true,
	models.BetPlace:           true,
	models.BetBracketQuinella: true,
	models.BetQuinella:        true,
	models.BetWide:            true,
	models.BetExacta:          true,
	models.BetTrio:            true,
	models.BetTrifecta:        true,
}
