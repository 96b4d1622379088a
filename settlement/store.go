package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/padraicbc/votesettle/models"
)

// Store is the persistence settlement runs against. Every method is atomic on
// its own; the engine never holds a transaction across calls.
type Store interface {
	// GetRace returns ErrRaceNotFound for unknown ids.
	GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error)
	CountResults(ctx context.Context, raceID uuid.UUID) (int, error)

	// AcquireRace moves the race from voting_closed to settling, or takes over a
	// settling lock started before staleBefore. The lock is stamped with now,
	// which fences every later write of the pass. It reports the status it
	// observed and whether the race is now owned by the caller.
	AcquireRace(ctx context.Context, raceID uuid.UUID, now, staleBefore time.Time) (models.RaceStatus, bool, error)
	// ReleaseRace moves the race to the given status if it is still settling
	// under the lock stamped lockedAt. It reports false when the lock was taken
	// over or reset in the meantime.
	ReleaseRace(ctx context.Context, raceID uuid.UUID, to models.RaceStatus, lockedAt time.Time) (bool, error)

	LoadRaceData(ctx context.Context, raceID uuid.UUID) (*RaceData, error)
	// PendingVotes returns the race's pending votes with their picks.
	PendingVotes(ctx context.Context, raceID uuid.UUID) ([]*models.Vote, error)
	// ApplyVote writes a scored vote only if it is still pending and the race is
	// still settling under w.LockedAt. It reports false, with no changes,
	// otherwise.
	ApplyVote(ctx context.Context, w VoteWrite) (bool, error)

	// ResetRace reverts a finished or voting_closed race, or one whose settling
	// lock started before staleBefore, to voting_closed and all of its votes to
	// pending in one transaction.
	ResetRace(ctx context.Context, raceID uuid.UUID, staleBefore time.Time) (ResetOutcome, error)
	FinishedRaces(ctx context.Context, raceDate time.Time) ([]*models.Race, error)

	// UpdateProfile locks the user's profile row, creating it when missing, loads
	// the user's whole vote ledger and calls fn. Changes fn makes to the profile
	// are saved and the returned notifications inserted in the same transaction.
	UpdateProfile(ctx context.Context, userID uuid.UUID, fn ProfileFunc) error
	ProfileUserIDs(ctx context.Context) ([]uuid.UUID, error)

	RecordAudit(ctx context.Context, audit *models.SettlementAudit) error
}

// ProfileFunc recomputes a locked profile from its ledger.
type ProfileFunc func(p *models.Profile, ledger []LedgerEntry) ([]*models.Notification, error)

// RaceData is the official outcome of a race.
type RaceData struct {
	Results []*models.RaceResult
	Entries []*models.RaceEntry
	Payouts []*models.Payout
}

// VoteWrite is everything persisted for one settled vote.
type VoteWrite struct {
	VoteID       uuid.UUID
	UserID       uuid.UUID
	RaceID       uuid.UUID
	LockedAt     time.Time
	EarnedPoints int
	IsPerfect    bool
	SettledAt    time.Time
	Picks        []PickWrite
	Transactions []*models.PointTransaction
	Notification *models.Notification
}

// PickWrite is the graded state of one vote pick.
type PickWrite struct {
	PickID       uuid.UUID
	IsHit        bool
	PointsEarned int
}

// ResetOutcome reports what ResetRace observed and changed. TookOver is set
// when an expired settling lock was cleared.
type ResetOutcome struct {
	Status   models.RaceStatus
	Applied  bool
	TookOver bool
	UserIDs  []uuid.UUID
}

// LedgerEntry is one of a user's votes as aggregate recomputation sees it.
type LedgerEntry struct {
	VoteID       uuid.UUID
	RaceID       uuid.UUID
	RaceDate     time.Time
	PostTime     *time.Time
	Status       models.VoteStatus
	EarnedPoints int
	IsPerfect    bool
	// RivalHit and DangerHit carry the graded is_hit of those picks.
	RivalHit  bool
	DangerHit bool
}
