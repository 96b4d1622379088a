package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/rank"
	"github.com/padraicbc/votesettle/settlement"
)

// Store is the Postgres implementation of settlement.Store plus the result
// and ranking queries the HTTP layer needs.
type Store struct {
	db *bun.DB
}

// NewStore wraps an open bun.DB.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ settlement.Store = (*Store)(nil)

func (s *Store) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race := new(models.Race)
	err := s.db.NewSelect().Model(race).Where("rc.id = ?", raceID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetRace: %w", err)
	}
	return race, nil
}

func (s *Store) CountResults(ctx context.Context, raceID uuid.UUID) (int, error) {
	n, err := s.db.NewSelect().Model((*models.RaceResult)(nil)).Where("race_id = ?", raceID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("db.CountResults: %w", err)
	}
	return n, nil
}

// AcquireRace locks the race row and flips it to settling when it is
// voting_closed or holds a settling lock older than staleBefore.
func (s *Store) AcquireRace(ctx context.Context, raceID uuid.UUID, now, staleBefore time.Time) (models.RaceStatus, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("db.AcquireRace: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	race, err := lockRace(ctx, tx, raceID)
	if err != nil {
		return "", false, err
	}
	stale := race.Status == models.RaceSettling &&
		race.SettlingStartedAt != nil && race.SettlingStartedAt.Before(staleBefore)
	if race.Status != models.RaceVotingClosed && !stale {
		return race.Status, false, nil
	}

	_, err = tx.NewUpdate().Model((*models.Race)(nil)).
		Set("status = ?", models.RaceSettling).
		Set("settling_started_at = ?", now).
		Where("id = ?", raceID).
		Exec(ctx)
	if err != nil {
		return "", false, fmt.Errorf("db.AcquireRace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("db.AcquireRace: commit: %w", err)
	}
	committed = true
	return race.Status, true, nil
}

// ReleaseRace only succeeds for the pass whose lock stamp is still on the row.
func (s *Store) ReleaseRace(ctx context.Context, raceID uuid.UUID, to models.RaceStatus, lockedAt time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*models.Race)(nil)).
		Set("status = ?", to).
		Set("settling_started_at = NULL").
		Where("id = ? AND status = ? AND settling_started_at = ?", raceID, models.RaceSettling, lockedAt).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("db.ReleaseRace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db.ReleaseRace: %w", err)
	}
	return n == 1, nil
}

func (s *Store) LoadRaceData(ctx context.Context, raceID uuid.UUID) (*settlement.RaceData, error) {
	data := new(settlement.RaceData)
	if err := s.db.NewSelect().Model(&data.Results).Where("race_id = ?", raceID).Order("finish_position").Scan(ctx); err != nil {
		return nil, fmt.Errorf("db.LoadRaceData: results: %w", err)
	}
	if err := s.db.NewSelect().Model(&data.Entries).Where("race_id = ?", raceID).Order("post_number").Scan(ctx); err != nil {
		return nil, fmt.Errorf("db.LoadRaceData: entries: %w", err)
	}
	if err := s.db.NewSelect().Model(&data.Payouts).Where("race_id = ?", raceID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("db.LoadRaceData: payouts: %w", err)
	}
	return data, nil
}

func (s *Store) PendingVotes(ctx context.Context, raceID uuid.UUID) ([]*models.Vote, error) {
	var votes []*models.Vote
	err := s.db.NewSelect().Model(&votes).
		Relation("Picks").
		Where("v.race_id = ? AND v.status = ?", raceID, models.VotePending).
		Order("v.created_at", "v.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.PendingVotes: %w", err)
	}
	return votes, nil
}

// ApplyVote writes a scored vote in one transaction whose first statement is
// the conditional status update. Zero rows means another pass got there first
// or this pass no longer holds the race lock.
func (s *Store) ApplyVote(ctx context.Context, w settlement.VoteWrite) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("db.ApplyVote: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.NewUpdate().Model((*models.Vote)(nil)).
		Set("status = ?", models.VoteSettled).
		Set("earned_points = ?", w.EarnedPoints).
		Set("is_perfect = ?", w.IsPerfect).
		Set("settled_at = ?", w.SettledAt).
		Where("id = ? AND status = ?", w.VoteID, models.VotePending).
		Where("EXISTS (SELECT 1 FROM races r WHERE r.id = ? AND r.status = ? AND r.settling_started_at = ?)",
			w.RaceID, models.RaceSettling, w.LockedAt).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("db.ApplyVote: vote: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	for _, p := range w.Picks {
		_, err := tx.NewUpdate().Model((*models.VotePick)(nil)).
			Set("is_hit = ?", p.IsHit).
			Set("points_earned = ?", p.PointsEarned).
			Where("id = ?", p.PickID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("db.ApplyVote: pick %s: %w", p.PickID, err)
		}
	}

	if _, err := tx.NewDelete().Model((*models.PointTransaction)(nil)).Where("vote_id = ?", w.VoteID).Exec(ctx); err != nil {
		return false, fmt.Errorf("db.ApplyVote: clear transactions: %w", err)
	}
	if len(w.Transactions) > 0 {
		if _, err := tx.NewInsert().Model(&w.Transactions).Exec(ctx); err != nil {
			return false, fmt.Errorf("db.ApplyVote: transactions: %w", err)
		}
	}
	if w.Notification != nil {
		_, err := tx.NewInsert().Model(w.Notification).
			On("CONFLICT (vote_id) WHERE type = 'vote_settled' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("db.ApplyVote: notification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("db.ApplyVote: commit: %w", err)
	}
	committed = true
	return true, nil
}

// ResetRace reverts a race and all of its votes in a single transaction.
// Clearing an expired settling lock also fences off its stale owner.
func (s *Store) ResetRace(ctx context.Context, raceID uuid.UUID, staleBefore time.Time) (settlement.ResetOutcome, error) {
	var out settlement.ResetOutcome
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("db.ResetRace: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	race, err := lockRace(ctx, tx, raceID)
	if err != nil {
		return out, err
	}
	out.Status = race.Status
	out.TookOver = race.Status == models.RaceSettling &&
		race.SettlingStartedAt != nil && race.SettlingStartedAt.Before(staleBefore)
	if race.Status != models.RaceFinished && race.Status != models.RaceVotingClosed && !out.TookOver {
		return out, nil
	}

	err = tx.NewSelect().Model((*models.Vote)(nil)).
		ColumnExpr("DISTINCT user_id").
		Where("race_id = ?", raceID).
		Order("user_id").
		Scan(ctx, &out.UserIDs)
	if err != nil {
		return out, fmt.Errorf("db.ResetRace: users: %w", err)
	}

	stmts := []struct {
		name string
		q    string
	}{
		{"race", `UPDATE races SET status = 'voting_closed', settling_started_at = NULL WHERE id = ?`},
		{"picks", `UPDATE vote_picks SET is_hit = NULL, points_earned = 0 WHERE vote_id IN (SELECT id FROM votes WHERE race_id = ?)`},
		{"votes", `UPDATE votes SET status = 'pending', earned_points = 0, is_perfect = false, settled_at = NULL WHERE race_id = ?`},
		{"transactions", `DELETE FROM point_transactions WHERE race_id = ?`},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.q, raceID); err != nil {
			return out, fmt.Errorf("db.ResetRace: %s: %w", st.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("db.ResetRace: commit: %w", err)
	}
	committed = true
	out.Applied = true
	return out, nil
}

func (s *Store) FinishedRaces(ctx context.Context, raceDate time.Time) ([]*models.Race, error) {
	var races []*models.Race
	err := s.db.NewSelect().Model(&races).
		Where("rc.race_date = ?::date", raceDate.Format(time.DateOnly)).
		Where("rc.status = ?", models.RaceFinished).
		OrderExpr("rc.post_time NULLS FIRST, rc.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.FinishedRaces: %w", err)
	}
	return races, nil
}

// SettleableRaces lists races that have results but are not finished, oldest
// first. Races held by a live settlement pass are included; the engine rejects them.
func (s *Store) SettleableRaces(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.NewSelect().Model((*models.Race)(nil)).
		Column("id").
		Where("rc.status IN (?)", bun.In([]models.RaceStatus{models.RaceVotingClosed, models.RaceSettling})).
		Where("EXISTS (SELECT 1 FROM race_results rr WHERE rr.race_id = rc.id)").
		OrderExpr("rc.race_date, rc.post_time NULLS FIRST, rc.id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("db.SettleableRaces: %w", err)
	}
	return ids, nil
}

type ledgerRow struct {
	VoteID       uuid.UUID         `bun:"vote_id"`
	RaceID       uuid.UUID         `bun:"race_id"`
	RaceDate     time.Time         `bun:"race_date"`
	PostTime     *time.Time        `bun:"post_time"`
	Status       models.VoteStatus `bun:"status"`
	EarnedPoints int               `bun:"earned_points"`
	IsPerfect    bool              `bun:"is_perfect"`
	RivalHit     bool              `bun:"rival_hit"`
	DangerHit    bool              `bun:"danger_hit"`
}

// UpdateProfile serialises recomputation per user with SELECT ... FOR UPDATE.
func (s *Store) UpdateProfile(ctx context.Context, userID uuid.UUID, fn settlement.ProfileFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.UpdateProfile: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p := &models.Profile{UserID: userID, RankID: rank.Tiers[0].ID}
	if _, err := tx.NewInsert().Model(p).On("CONFLICT (user_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("db.UpdateProfile: ensure profile: %w", err)
	}
	p = new(models.Profile)
	if err := tx.NewSelect().Model(p).Where("user_id = ?", userID).For("UPDATE").Scan(ctx); err != nil {
		return fmt.Errorf("db.UpdateProfile: lock profile: %w", err)
	}

	var rows []ledgerRow
	err = tx.NewRaw(`
		SELECT v.id AS vote_id, v.race_id, r.race_date, r.post_time, v.status, v.earned_points, v.is_perfect,
			COALESCE((SELECT bool_or(vp.is_hit) FROM vote_picks vp WHERE vp.vote_id = v.id AND vp.pick_type = 'rival'), false) AS rival_hit,
			COALESCE((SELECT bool_or(vp.is_hit) FROM vote_picks vp WHERE vp.vote_id = v.id AND vp.pick_type = 'danger'), false) AS danger_hit
		FROM votes v
		JOIN races r ON r.id = v.race_id
		WHERE v.user_id = ?
		ORDER BY r.race_date, r.post_time NULLS FIRST, v.race_id`, userID).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("db.UpdateProfile: ledger: %w", err)
	}
	ledger := make([]settlement.LedgerEntry, len(rows))
	for i, r := range rows {
		ledger[i] = settlement.LedgerEntry(r)
	}

	notes, err := fn(p, ledger)
	if err != nil {
		return err
	}

	_, err = tx.NewUpdate().Model(p).
		Column("cumulative_points", "monthly_points", "total_votes", "win_hits", "place_hits", "danger_hits",
			"current_streak", "best_streak", "rank_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("db.UpdateProfile: save profile: %w", err)
	}
	if len(notes) > 0 {
		if _, err := tx.NewInsert().Model(&notes).Exec(ctx); err != nil {
			return fmt.Errorf("db.UpdateProfile: notifications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db.UpdateProfile: commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) ProfileUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.NewSelect().Model((*models.Profile)(nil)).Column("user_id").Order("user_id").Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("db.ProfileUserIDs: %w", err)
	}
	return ids, nil
}

func (s *Store) RecordAudit(ctx context.Context, audit *models.SettlementAudit) error {
	if _, err := s.db.NewInsert().Model(audit).Exec(ctx); err != nil {
		return fmt.Errorf("db.RecordAudit: %w", err)
	}
	return nil
}

func lockRace(ctx context.Context, tx bun.Tx, raceID uuid.UUID) (*models.Race, error) {
	race := new(models.Race)
	err := tx.NewSelect().Model(race).
		Column("id", "status", "settling_started_at").
		Where("rc.id = ?", raceID).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.lockRace: %w", err)
	}
	return race, nil
}
