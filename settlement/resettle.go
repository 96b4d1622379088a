package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/models"
)

// BatchResult collects the per-race results of a date-wide re-settlement.
type BatchResult struct {
	RaceDate string    `json:"race_date"`
	Total    int       `json:"total"`
	Failed   int       `json:"failed"`
	Results  []*Result `json:"results"`
}

// ResettleRace reverts a race's votes to pending and settles it again against
// its current results. A settling lock older than the lock TTL is cleared. Everyone whose vote was reverted gets their profile
// recomputed, even when the new pass fails.
func (e *Engine) ResettleRace(ctx context.Context, raceID uuid.UUID, actor string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.ResettleRace",
		trace.WithAttributes(attribute.String("race_id", raceID.String()), attribute.String("actor", actor)))
	defer span.End()

	e.logger.Info("resettle requested", zap.String("race_id", raceID.String()), zap.String("actor", actor))
	start := e.now()
	res, err := e.resettle(ctx, raceID)
	e.finish(ctx, span, "resettle", actor, res, err)
	e.metrics.SettlementFinished(outcomeLabel(err), e.now().Sub(start))
	return res, err
}

func (e *Engine) resettle(ctx context.Context, raceID uuid.UUID) (*Result, error) {
	if _, err := e.store.GetRace(ctx, raceID); err != nil {
		return &Result{RaceID: raceID}, err
	}
	reset, err := e.store.ResetRace(ctx, raceID, e.now().Add(-e.cfg.LockTTL))
	if err != nil {
		return &Result{RaceID: raceID}, err
	}
	if reset.TookOver {
		e.logger.Warn("resettle cleared stale settlement lock",
			zap.String("race_id", raceID.String()), zap.Duration("ttl", e.cfg.LockTTL))
	}
	if !reset.Applied {
		if reset.Status == models.RaceSettling {
			return &Result{RaceID: raceID}, &AlreadySettlingError{RaceID: raceID}
		}
		return &Result{RaceID: raceID}, &RaceStatusError{
			RaceID: raceID,
			Status: reset.Status,
			Want:   []models.RaceStatus{models.RaceFinished, models.RaceVotingClosed},
		}
	}

	res, settleErr := e.settle(ctx, raceID)

	var rest []uuid.UUID
	for _, id := range reset.UserIDs {
		if !res.recomputed[id] {
			rest = append(rest, id)
		}
	}
	return res, errors.Join(settleErr, e.recomputeUsers(ctx, rest, res))
}

// ResettleDate re-settles every finished race on the given date. Races are
// processed one after another; a failure on one race does not stop the rest.
func (e *Engine) ResettleDate(ctx context.Context, raceDate time.Time, actor string) (*BatchResult, error) {
	races, err := e.store.FinishedRaces(ctx, raceDate)
	if err != nil {
		return nil, err
	}
	batch := &BatchResult{RaceDate: raceDate.Format(time.DateOnly), Total: len(races)}
	for _, r := range races {
		res, err := e.ResettleRace(ctx, r.ID, actor)
		if err != nil {
			batch.Failed++
		}
		batch.Results = append(batch.Results, res)
	}
	e.logger.Info("date resettled", zap.String("race_date", batch.RaceDate),
		zap.Int("races", batch.Total), zap.Int("failed", batch.Failed), zap.String("actor", actor))
	return batch, nil
}
