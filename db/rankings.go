package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/padraicbc/votesettle/models"
)

// Ranking periods accepted by Rankings.
const (
	PeriodCumulative = "cumulative"
	PeriodMonthly    = "monthly"
)

// Rankings returns the top profiles by cumulative or monthly points. Ties are
// broken by win hits and then user id so paging is stable.
func (s *Store) Rankings(ctx context.Context, period string, limit int) ([]*models.Profile, error) {
	col := "cumulative_points"
	if period == PeriodMonthly {
		col = "monthly_points"
	}
	var out []*models.Profile
	err := s.db.NewSelect().Model(&out).
		Where("? > 0", bun.Ident(col)).
		OrderExpr("? DESC, win_hits DESC, user_id", bun.Ident(col)).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.Rankings: %w", err)
	}
	return out, nil
}
