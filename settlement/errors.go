package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/padraicbc/votesettle/models"
)

// ErrRaceNotFound is returned when the race id is unknown.
var ErrRaceNotFound = errors.New("race not found")

// ErrLockLost means the pass's settling lock expired and was taken over or
// reset before the pass released it. Writes after that point were skipped.
var ErrLockLost = errors.New("settlement lock lost to another pass")

// NoResultsError means the race has no official result rows. The race is left untouched.
type NoResultsError struct {
	RaceID uuid.UUID
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("race %s has no results", e.RaceID)
}

// AlreadySettlingError means another settlement pass owns the race. Retry later.
type AlreadySettlingError struct {
	RaceID uuid.UUID
}

func (e *AlreadySettlingError) Error() string {
	return fmt.Sprintf("race %s is already being settled", e.RaceID)
}

// RaceStatusError means the race is in a status the operation cannot start from.
type RaceStatusError struct {
	RaceID uuid.UUID
	Status models.RaceStatus
	Want   []models.RaceStatus
}

func (e *RaceStatusError) Error() string {
	want := make([]string, len(e.Want))
	for i, s := range e.Want {
		want[i] = string(s)
	}
	return fmt.Sprintf("race %s is %s, want %s", e.RaceID, e.Status, strings.Join(want, " or "))
}

// PartialSettlementError lists votes whose write failed. Votes written before or
// after them stay settled.
type PartialSettlementError struct {
	RaceID  uuid.UUID
	VoteIDs []uuid.UUID
	Err     error
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("race %s: %d vote(s) failed to settle: %s: %v", e.RaceID, len(e.VoteIDs), joinIDs(e.VoteIDs), e.Err)
}

func (e *PartialSettlementError) Unwrap() error { return e.Err }

// AggregateRecomputeError lists users whose profile could not be recomputed.
// Their aggregates stay stale until a later recompute succeeds.
type AggregateRecomputeError struct {
	UserIDs []uuid.UUID
	Err     error
}

func (e *AggregateRecomputeError) Error() string {
	return fmt.Sprintf("aggregate recompute failed for %d user(s): %s: %v", len(e.UserIDs), joinIDs(e.UserIDs), e.Err)
}

func (e *AggregateRecomputeError) Unwrap() error { return e.Err }

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
