package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/config"
	"github.com/padraicbc/votesettle/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(cfg *config.Config) *bun.DB {
	db, err := Open(context.Background(), cfg.PostgresDSN(), cfg.Debug)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	return db
}

// Open connects to dsn and pings it. Debug mode logs every query.
func Open(ctx context.Context, dsn string, debug bool) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Course)(nil),
		(*models.Horse)(nil),
		(*models.Race)(nil),
		(*models.RaceEntry)(nil),
		(*models.RaceResult)(nil),
		(*models.Payout)(nil),
		(*models.Vote)(nil),
		(*models.VotePick)(nil),
		(*models.PointTransaction)(nil),
		(*models.Profile)(nil),
		(*models.Notification)(nil),
		(*models.SettlementAudit)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	constraints := []string{
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'races_status_check') THEN ALTER TABLE races ADD CONSTRAINT races_status_check CHECK (status IN ('scheduled','voting_open','voting_closed','settling','finished')); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'votes_status_check') THEN ALTER TABLE votes ADD CONSTRAINT votes_status_check CHECK (status IN ('pending','settled')); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'votes_settled_consistent') THEN ALTER TABLE votes ADD CONSTRAINT votes_settled_consistent CHECK ((status = 'pending') = (settled_at IS NULL)); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'vote_picks_type_check') THEN ALTER TABLE vote_picks ADD CONSTRAINT vote_picks_type_check CHECK (pick_type IN ('favorite','rival','danger')); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'vote_picks_vote_fk') THEN ALTER TABLE vote_picks ADD CONSTRAINT vote_picks_vote_fk FOREIGN KEY (vote_id) REFERENCES votes (id) ON DELETE CASCADE; END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'race_results_entry_fk') THEN ALTER TABLE race_results ADD CONSTRAINT race_results_entry_fk FOREIGN KEY (race_entry_id) REFERENCES race_entries (id); END IF; END $$`,
		`CREATE INDEX IF NOT EXISTS votes_race_status_idx ON votes (race_id, status)`,
		`CREATE INDEX IF NOT EXISTS votes_user_idx ON votes (user_id)`,
		`CREATE INDEX IF NOT EXISTS point_transactions_race_idx ON point_transactions (race_id)`,
		`CREATE INDEX IF NOT EXISTS profiles_cumulative_idx ON profiles (cumulative_points DESC)`,
		`CREATE INDEX IF NOT EXISTS profiles_monthly_idx ON profiles (monthly_points DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS notifications_vote_settled_once ON notifications (vote_id) WHERE type = 'vote_settled'`,
	}
	for _, stmt := range constraints {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			zap.L().Warn("schema constraint failed", zap.String("stmt", stmt), zap.Error(err))
		}
	}

	return nil
}
