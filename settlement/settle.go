package settlement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/scoring"
)

// Result summarises one settlement pass.
type Result struct {
	RaceID        uuid.UUID   `json:"race_id"`
	Success       bool        `json:"success"`
	SettledCount  int         `json:"settled_count"`
	SkippedCount  int         `json:"skipped_count"`
	FailedVoteIDs []uuid.UUID `json:"failed_vote_ids,omitempty"`
	FailedUserIDs []uuid.UUID `json:"failed_user_ids,omitempty"`
	Error         string      `json:"error,omitempty"`

	recomputed map[uuid.UUID]bool
}

// SettleRace scores every pending vote of a race whose voting has closed,
// finishes the race and refreshes the profiles of everyone it touched.
// The returned Result is never nil.
func (e *Engine) SettleRace(ctx context.Context, raceID uuid.UUID, actor string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.SettleRace",
		trace.WithAttributes(attribute.String("race_id", raceID.String())))
	defer span.End()

	start := e.now()
	res, err := e.settle(ctx, raceID)
	e.finish(ctx, span, "settle", actor, res, err)
	e.metrics.SettlementFinished(outcomeLabel(err), e.now().Sub(start))
	return res, err
}

func (e *Engine) settle(ctx context.Context, raceID uuid.UUID) (*Result, error) {
	res := &Result{RaceID: raceID, recomputed: map[uuid.UUID]bool{}}
	log := e.logger.With(zap.String("race_id", raceID.String()))

	race, err := e.store.GetRace(ctx, raceID)
	if err != nil {
		return res, err
	}
	n, err := e.store.CountResults(ctx, raceID)
	if err != nil {
		return res, err
	}
	if n == 0 {
		return res, &NoResultsError{RaceID: raceID}
	}

	// Postgres keeps microseconds; the stamp must compare equal after a round trip.
	lockedAt := e.now().Truncate(time.Microsecond)
	observed, ok, err := e.store.AcquireRace(ctx, raceID, lockedAt, lockedAt.Add(-e.cfg.LockTTL))
	if err != nil {
		return res, err
	}
	if !ok {
		if observed == models.RaceSettling {
			return res, &AlreadySettlingError{RaceID: raceID}
		}
		return res, &RaceStatusError{RaceID: raceID, Status: observed, Want: []models.RaceStatus{models.RaceVotingClosed}}
	}
	if observed == models.RaceSettling {
		log.Warn("took over stale settlement lock", zap.Duration("ttl", e.cfg.LockTTL))
	}

	// From here on the race is ours and must leave settling on every path.
	release := func(to models.RaceStatus) error {
		released, err := e.store.ReleaseRace(context.WithoutCancel(ctx), raceID, to, lockedAt)
		if err != nil {
			log.Error("release race failed", zap.String("to", string(to)), zap.Error(err))
			return fmt.Errorf("release race to %s: %w", to, err)
		}
		if !released {
			log.Warn("settlement lock lost before release", zap.String("to", string(to)), zap.Time("locked_at", lockedAt))
			return ErrLockLost
		}
		return nil
	}

	data, err := e.store.LoadRaceData(ctx, raceID)
	if err != nil {
		return res, errors.Join(err, release(models.RaceVotingClosed))
	}
	if len(data.Results) == 0 {
		return res, errors.Join(&NoResultsError{RaceID: raceID}, release(models.RaceVotingClosed))
	}
	votes, err := e.store.PendingVotes(ctx, raceID)
	if err != nil {
		return res, errors.Join(err, release(models.RaceVotingClosed))
	}

	touched, failures := e.writeVotes(ctx, race, lockedAt, buildInput(race, data), votes, res)
	e.metrics.VotesProcessed(res.SettledCount, res.SkippedCount, len(res.FailedVoteIDs))

	var errs []error
	if len(res.FailedVoteIDs) > 0 {
		errs = append(errs, &PartialSettlementError{RaceID: raceID, VoteIDs: res.FailedVoteIDs, Err: errors.Join(failures...)})
		errs = append(errs, release(models.RaceVotingClosed))
	} else {
		errs = append(errs, release(models.RaceFinished))
	}

	if err := e.recomputeUsers(ctx, touched, res); err != nil {
		errs = append(errs, err)
	}

	log.Info("race settled",
		zap.Int("settled", res.SettledCount),
		zap.Int("skipped", res.SkippedCount),
		zap.Int("failed", len(res.FailedVoteIDs)),
		zap.Int("users", len(touched)))
	return res, errors.Join(errs...)
}

// writeVotes scores and persists votes in parallel. A failed vote never stops
// the others. It returns the distinct users whose votes were written.
func (e *Engine) writeVotes(ctx context.Context, race *models.Race, lockedAt time.Time, base scoring.Input, votes []*models.Vote, res *Result) ([]uuid.UUID, []error) {
	var (
		mu       sync.Mutex
		users    = map[uuid.UUID]bool{}
		failures []error
		g        errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)

	for _, v := range votes {
		g.Go(func() error {
			w := e.voteWrite(race, base, v)
			w.LockedAt = lockedAt
			applied, err := e.store.ApplyVote(ctx, w)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				e.logger.Error("vote settlement failed",
					zap.String("vote_id", v.ID.String()), zap.String("user_id", v.UserID.String()), zap.Error(err))
				res.FailedVoteIDs = append(res.FailedVoteIDs, v.ID)
				failures = append(failures, fmt.Errorf("vote %s: %w", v.ID, err))
			case !applied:
				res.SkippedCount++
			default:
				res.SettledCount++
				users[v.UserID] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.FailedVoteIDs, compareUUID)
	out := make([]uuid.UUID, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	slices.SortFunc(out, compareUUID)
	return out, failures
}

func (e *Engine) voteWrite(race *models.Race, base scoring.Input, v *models.Vote) VoteWrite {
	in := base
	in.Picks = make([]scoring.Pick, 0, len(v.Picks))
	for _, p := range v.Picks {
		in.Picks = append(in.Picks, scoring.Pick{Type: p.PickType, EntryID: p.RaceEntryID})
	}
	out := scoring.Score(e.table, in)

	slot := make(map[models.PickType]scoring.PickResult, len(out.Picks))
	for _, pr := range out.Picks {
		slot[pr.Type] = pr
	}
	w := VoteWrite{
		VoteID:       v.ID,
		UserID:       v.UserID,
		RaceID:       v.RaceID,
		EarnedPoints: out.Points,
		IsPerfect:    out.Perfect,
		SettledAt:    e.now(),
	}
	graded := map[models.PickType]bool{}
	for _, p := range v.Picks {
		pw := PickWrite{PickID: p.ID}
		// only the first pick of a type is scored; extra ones are misses
		if pr, ok := slot[p.PickType]; ok && !graded[p.PickType] && pr.EntryID == p.RaceEntryID {
			graded[p.PickType] = true
			pw.IsHit = pr.Hit != scoring.Miss
			pw.PointsEarned = pr.Points
		}
		w.Picks = append(w.Picks, pw)
	}
	for _, it := range out.Items {
		w.Transactions = append(w.Transactions, &models.PointTransaction{
			UserID:      v.UserID,
			VoteID:      v.ID,
			RaceID:      v.RaceID,
			Amount:      it.Amount,
			Reason:      it.Reason,
			Description: it.Description,
		})
	}
	if e.cfg.NotifyVoteSettled {
		link := fmt.Sprintf("/races/%s", race.ID)
		body := fmt.Sprintf("%s: %d points", race.Name, out.Points)
		if out.Perfect {
			body += " (perfect)"
		}
		w.Notification = &models.Notification{
			UserID: v.UserID,
			VoteID: &v.ID,
			Type:   models.NotificationVoteSettled,
			Title:  "Your vote has been settled",
			Body:   body,
			Link:   &link,
		}
	}
	return w
}

func buildInput(race *models.Race, data *RaceData) scoring.Input {
	in := scoring.Input{
		Finish:  make(map[uuid.UUID]int, len(data.Results)),
		Entries: make(map[uuid.UUID]scoring.Entry, len(data.Entries)),
		Payouts: make([]models.Payout, 0, len(data.Payouts)),
		Grade:   race.GradeOrEmpty(),
	}
	for _, r := range data.Results {
		in.Finish[r.RaceEntryID] = r.FinishPosition
	}
	for _, en := range data.Entries {
		se := scoring.Entry{PostNumber: en.PostNumber}
		if en.Popularity != nil {
			se.Popularity = *en.Popularity
		}
		in.Entries[en.ID] = se
	}
	for _, p := range data.Payouts {
		in.Payouts = append(in.Payouts, *p)
	}
	return in
}

// finish records the outcome of a settle or resettle call on the span, the log
// and the audit table. Audit failures are logged only.
func (e *Engine) finish(ctx context.Context, span trace.Span, action, actor string, res *Result, err error) {
	res.Success = err == nil
	audit := &models.SettlementAudit{
		RaceID:       res.RaceID,
		Action:       action,
		Actor:        actor,
		SettledCount: res.SettledCount,
		FailedCount:  len(res.FailedVoteIDs),
	}
	if err != nil {
		res.Error = err.Error()
		audit.Error = &res.Error
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeLabel(err))
	}
	span.SetAttributes(attribute.Int("settled", res.SettledCount), attribute.Int("skipped", res.SkippedCount))
	if aerr := e.store.RecordAudit(context.WithoutCancel(ctx), audit); aerr != nil {
		e.logger.Error("record settlement audit failed", zap.String("race_id", res.RaceID.String()), zap.Error(aerr))
	}
}

func outcomeLabel(err error) string {
	var (
		noResults *NoResultsError
		settling  *AlreadySettlingError
		status    *RaceStatusError
		partial   *PartialSettlementError
		aggregate *AggregateRecomputeError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &noResults):
		return "no_results"
	case errors.As(err, &settling):
		return "already_settling"
	case errors.As(err, &status):
		return "bad_status"
	case errors.Is(err, ErrRaceNotFound):
		return "not_found"
	case errors.Is(err, ErrLockLost):
		return "lock_lost"
	case errors.As(err, &partial):
		return "partial"
	case errors.As(err, &aggregate):
		return "aggregate_failed"
	default:
		return "error"
	}
}

func compareUUID(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }
