package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/votesettle/db"
	"github.com/padraicbc/votesettle/rank"
)

const (
	defaultRankingLimit = 50
	maxRankingLimit     = 100
)

type rankingRow struct {
	Position      int       `json:"position"`
	UserID        uuid.UUID `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	Points        int       `json:"points"`
	RankID        string    `json:"rank_id"`
	RankName      string    `json:"rank_name"`
	WinHits       int       `json:"win_hits"`
	PlaceHits     int       `json:"place_hits"`
	DangerHits    int       `json:"danger_hits"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
}

// Rankings lists the leaderboard. period is cumulative (default) or monthly.
// Equal points share a position.
func (h *Handler) Rankings(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = db.PeriodCumulative
	}
	if period != db.PeriodCumulative && period != db.PeriodMonthly {
		return echo.NewHTTPError(http.StatusBadRequest, "period must be cumulative or monthly")
	}
	limit := defaultRankingLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxRankingLimit)
	}

	profiles, err := h.store.Rankings(c.Request().Context(), period, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rows := make([]rankingRow, len(profiles))
	for i, p := range profiles {
		points := p.CumulativePoints
		if period == db.PeriodMonthly {
			points = p.MonthlyPoints
		}
		pos := i + 1
		if i > 0 && rows[i-1].Points == points {
			pos = rows[i-1].Position
		}
		name := p.RankID
		if idx := rank.Index(p.RankID); idx >= 0 {
			name = rank.Tiers[idx].Name
		}
		rows[i] = rankingRow{
			Position:      pos,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Points:        points,
			RankID:        p.RankID,
			RankName:      name,
			WinHits:       p.WinHits,
			PlaceHits:     p.PlaceHits,
			DangerHits:    p.DangerHits,
			CurrentStreak: p.CurrentStreak,
			BestStreak:    p.BestStreak,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"period": period, "rankings": rows})
}
