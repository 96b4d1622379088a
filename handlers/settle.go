package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/votesettle/settlement"
)

// SettleRace runs a settlement pass. The body is the pass result; the status
// code tells callers whether a retry makes sense.
func (h *Handler) SettleRace(c echo.Context) error {
	raceID, err := uuid.Parse(c.Param("raceID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid race id")
	}
	res, err := h.settler.SettleRace(c.Request().Context(), raceID, actor(c))
	return respondSettlement(c, res, err)
}

type resettleRequest struct {
	RaceDate string     `json:"race_date"`
	RaceID   *uuid.UUID `json:"race_id"`
}

// Resettle re-scores one race or every finished race on a date against the
// current results.
func (h *Handler) Resettle(c echo.Context) error {
	var req resettleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if (req.RaceID == nil) == (req.RaceDate == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of race_id or race_date is required")
	}

	if req.RaceID != nil {
		res, err := h.settler.ResettleRace(c.Request().Context(), *req.RaceID, actor(c))
		return respondSettlement(c, res, err)
	}

	date, err := time.Parse(time.DateOnly, req.RaceDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "race_date must be YYYY-MM-DD")
	}
	batch, err := h.settler.ResettleDate(c.Request().Context(), date, actor(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if batch.Failed > 0 {
		return c.JSON(http.StatusMultiStatus, batch)
	}
	return c.JSON(http.StatusOK, batch)
}

// RecomputeAggregates rebuilds every profile from the vote ledger.
func (h *Handler) RecomputeAggregates(c echo.Context) error {
	err := h.settler.RecomputeAll(c.Request().Context())
	var agg *settlement.AggregateRecomputeError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	case errors.As(err, &agg):
		return c.JSON(http.StatusMultiStatus, map[string]any{
			"status":          "partial",
			"failed_user_ids": agg.UserIDs,
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func respondSettlement(c echo.Context, res *settlement.Result, err error) error {
	if errors.Is(err, settlement.ErrRaceNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "race not found")
	}
	if res == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(settlementStatus(err), res)
}

func settlementStatus(err error) int {
	var (
		noResults *settlement.NoResultsError
		settling  *settlement.AlreadySettlingError
		status    *settlement.RaceStatusError
		partial   *settlement.PartialSettlementError
		aggregate *settlement.AggregateRecomputeError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &noResults):
		return http.StatusUnprocessableEntity
	case errors.As(err, &settling), errors.As(err, &status), errors.Is(err, settlement.ErrLockLost):
		return http.StatusConflict
	case errors.As(err, &partial), errors.As(err, &aggregate):
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}
