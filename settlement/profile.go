package settlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/rank"
)

// RecomputeAggregates rebuilds a user's profile from their vote ledger and
// re-evaluates their rank. A rank_up notification is written in the same
// transaction when the rank strictly increases.
func (e *Engine) RecomputeAggregates(ctx context.Context, userID uuid.UUID) error {
	ctx, span := e.tracer.Start(ctx, "settlement.RecomputeAggregates",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	if err := e.recompute(ctx, userID); err != nil {
		span.RecordError(err)
		return &AggregateRecomputeError{UserIDs: []uuid.UUID{userID}, Err: err}
	}
	return nil
}

// RecomputeAll refreshes every profile. The monthly job runs it so monthly
// points roll over even for users without new votes.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "settlement.RecomputeAll")
	defer span.End()

	ids, err := e.store.ProfileUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	span.SetAttributes(attribute.Int("users", len(ids)))
	e.logger.Info("recomputing all profiles", zap.Int("users", len(ids)))
	return e.recomputeUsers(ctx, ids, nil)
}

// recomputeUsers runs the aggregate updater for each user, in parallel across
// users. Successful ids are marked in res when it is non-nil.
func (e *Engine) recomputeUsers(ctx context.Context, ids []uuid.UUID, res *Result) error {
	var (
		mu     sync.Mutex
		failed []uuid.UUID
		errs   []error
		g      errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			err := e.recompute(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				res.recomputed[id] = true
			}
			if err != nil {
				e.logger.Error("aggregate recompute failed", zap.String("user_id", id.String()), zap.Error(err))
				failed = append(failed, id)
				errs = append(errs, fmt.Errorf("user %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	slices.SortFunc(failed, compareUUID)
	if res != nil {
		res.FailedUserIDs = append(res.FailedUserIDs, failed...)
	}
	return &AggregateRecomputeError{UserIDs: failed, Err: errors.Join(errs...)}
}

func (e *Engine) recompute(ctx context.Context, userID uuid.UUID) error {
	rankedUp := false
	err := e.store.UpdateProfile(ctx, userID, func(p *models.Profile, ledger []LedgerEntry) ([]*models.Notification, error) {
		rankedUp = false
		now := e.now()
		ComputeAggregates(ledger, now, e.cfg.Location).Apply(p)
		p.UpdatedAt = now

		prev := p.RankID
		tier, change := rank.Compare(prev, p.CumulativePoints)
		p.RankID = tier.ID
		// an unknown stored rank is corrected without a notification
		if change != rank.Up || rank.Index(prev) < 0 {
			if change == rank.Down {
				e.logger.Info("rank lowered", zap.String("user_id", userID.String()),
					zap.String("from", prev), zap.String("to", tier.ID))
			}
			return nil, nil
		}

		rankedUp = true
		link := "/mypage"
		return []*models.Notification{{
			UserID: userID,
			Type:   models.NotificationRankUp,
			Title:  "Rank up!",
			Body:   fmt.Sprintf("You reached %s with %d points", tier.Name, p.CumulativePoints),
			Link:   &link,
		}}, nil
	})
	if err != nil {
		e.metrics.AggregateFailed()
		return err
	}
	if rankedUp {
		e.metrics.RankUp()
	}
	return nil
}
