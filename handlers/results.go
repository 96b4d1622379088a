package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/db"
	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/settlement"
)

type resultIn struct {
	RaceEntryID    uuid.UUID `json:"race_entry_id"`
	FinishPosition int       `json:"finish_position"`
	FinishTime     *string   `json:"finish_time"`
	Margin         *string   `json:"margin"`
	Last3F         *float64  `json:"last_3f"`
}

type payoutIn struct {
	BetType      string `json:"bet_type"`
	Combination  string `json:"combination"`
	PayoutAmount int64  `json:"payout_amount"`
	Popularity   *int   `json:"popularity"`
}

type resultsRequest struct {
	Results []resultIn `json:"results"`
	Payouts []payoutIn `json:"payouts"`
}

// PostResults replaces a race's official results and payouts. Settlement is a
// separate call.
func (h *Handler) PostResults(c echo.Context) error {
	raceID, err := uuid.Parse(c.Param("raceID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid race id")
	}
	var req resultsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results := make([]*models.RaceResult, len(req.Results))
	for i, r := range req.Results {
		results[i] = &models.RaceResult{
			RaceID:         raceID,
			RaceEntryID:    r.RaceEntryID,
			FinishPosition: r.FinishPosition,
			FinishTime:     r.FinishTime,
			Margin:         r.Margin,
			Last3F:         r.Last3F,
		}
	}
	payouts := make([]*models.Payout, len(req.Payouts))
	for i, p := range req.Payouts {
		payouts[i] = &models.Payout{
			RaceID:       raceID,
			BetType:      p.BetType,
			Combination:  p.Combination,
			PayoutAmount: p.PayoutAmount,
			Popularity:   p.Popularity,
		}
	}

	err = h.store.ReplaceResults(c.Request().Context(), raceID, results, payouts)
	var (
		settling *settlement.AlreadySettlingError
		status   *settlement.RaceStatusError
	)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrInvalidResults):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, settlement.ErrRaceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	case errors.As(err, &settling), errors.As(err, &status):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.logger.Info("results recorded",
		zap.String("race_id", raceID.String()),
		zap.Int("results", len(results)),
		zap.Int("payouts", len(payouts)),
		zap.String("actor", actor(c)))
	return c.JSON(http.StatusOK, map[string]any{
		"race_id": raceID,
		"results": len(results),
		"payouts": len(payouts),
	})
}
