package settlement

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/padraicbc/votesettle/models"
)

// memStore is an in-memory Store. Failure and hook fields let tests inject
// faults and interleavings around vote writes.
type memStore struct {
	mu sync.Mutex

	races         map[uuid.UUID]*models.Race
	entries       map[uuid.UUID][]*models.RaceEntry
	results       map[uuid.UUID][]*models.RaceResult
	payouts       map[uuid.UUID][]*models.Payout
	votes         map[uuid.UUID]*models.Vote
	transactions  map[uuid.UUID][]*models.PointTransaction
	profiles      map[uuid.UUID]*models.Profile
	notifications []*models.Notification
	audits        []*models.SettlementAudit

	failVote    map[uuid.UUID]error
	failProfile map[uuid.UUID]error
	// failSave fails UpdateProfile after the callback ran, like a failed commit.
	failSave    map[uuid.UUID]error
	beforeApply func(w VoteWrite)
}

func newMemStore() *memStore {
	return &memStore{
		races:        map[uuid.UUID]*models.Race{},
		entries:      map[uuid.UUID][]*models.RaceEntry{},
		results:      map[uuid.UUID][]*models.RaceResult{},
		payouts:      map[uuid.UUID][]*models.Payout{},
		votes:        map[uuid.UUID]*models.Vote{},
		transactions: map[uuid.UUID][]*models.PointTransaction{},
		profiles:     map[uuid.UUID]*models.Profile{},
		failVote:     map[uuid.UUID]error{},
		failProfile:  map[uuid.UUID]error{},
		failSave:     map[uuid.UUID]error{},
	}
}

func (m *memStore) GetRace(_ context.Context, id uuid.UUID) (*models.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[id]
	if !ok {
		return nil, ErrRaceNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) CountResults(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results[id]), nil
}

func (m *memStore) AcquireRace(_ context.Context, id uuid.UUID, now, staleBefore time.Time) (models.RaceStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[id]
	if !ok {
		return "", false, ErrRaceNotFound
	}
	st := r.Status
	stale := st == models.RaceSettling && r.SettlingStartedAt != nil && r.SettlingStartedAt.Before(staleBefore)
	if st != models.RaceVotingClosed && !stale {
		return st, false, nil
	}
	r.Status = models.RaceSettling
	r.SettlingStartedAt = &now
	return st, true, nil
}

func (m *memStore) ReleaseRace(_ context.Context, id uuid.UUID, to models.RaceStatus, lockedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.races[id]
	if !m.holds(r, lockedAt) {
		return false, nil
	}
	r.Status = to
	r.SettlingStartedAt = nil
	return true, nil
}

func (m *memStore) holds(r *models.Race, lockedAt time.Time) bool {
	return r.Status == models.RaceSettling && r.SettlingStartedAt != nil && r.SettlingStartedAt.Equal(lockedAt)
}

func (m *memStore) LoadRaceData(_ context.Context, id uuid.UUID) (*RaceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &RaceData{
		Results: slices.Clone(m.results[id]),
		Entries: slices.Clone(m.entries[id]),
		Payouts: slices.Clone(m.payouts[id]),
	}, nil
}

func (m *memStore) PendingVotes(_ context.Context, raceID uuid.UUID) ([]*models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Vote
	for _, v := range m.votes {
		if v.RaceID == raceID && v.Status == models.VotePending {
			out = append(out, copyVote(v))
		}
	}
	slices.SortFunc(out, func(a, b *models.Vote) int { return compareUUID(a.ID, b.ID) })
	return out, nil
}

func (m *memStore) ApplyVote(_ context.Context, w VoteWrite) (bool, error) {
	if m.beforeApply != nil {
		m.beforeApply(w)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failVote[w.VoteID]; err != nil {
		return false, err
	}
	v := m.votes[w.VoteID]
	if v.Status != models.VotePending || !m.holds(m.races[w.RaceID], w.LockedAt) {
		return false, nil
	}
	v.Status = models.VoteSettled
	v.EarnedPoints = w.EarnedPoints
	v.IsPerfect = w.IsPerfect
	at := w.SettledAt
	v.SettledAt = &at
	for _, pw := range w.Picks {
		for _, p := range v.Picks {
			if p.ID == pw.PickID {
				hit := pw.IsHit
				p.IsHit = &hit
				p.PointsEarned = pw.PointsEarned
			}
		}
	}
	m.transactions[w.VoteID] = w.Transactions
	if w.Notification != nil && !m.notifiedVote(w.VoteID) {
		m.notifications = append(m.notifications, w.Notification)
	}
	return true, nil
}

func (m *memStore) notifiedVote(voteID uuid.UUID) bool {
	for _, n := range m.notifications {
		if n.Type == models.NotificationVoteSettled && n.VoteID != nil && *n.VoteID == voteID {
			return true
		}
	}
	return false
}

func (m *memStore) ResetRace(_ context.Context, id uuid.UUID, staleBefore time.Time) (ResetOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[id]
	if !ok {
		return ResetOutcome{}, ErrRaceNotFound
	}
	out := ResetOutcome{Status: r.Status}
	out.TookOver = r.Status == models.RaceSettling && r.SettlingStartedAt != nil && r.SettlingStartedAt.Before(staleBefore)
	if r.Status != models.RaceFinished && r.Status != models.RaceVotingClosed && !out.TookOver {
		return out, nil
	}
	r.Status = models.RaceVotingClosed
	r.SettlingStartedAt = nil
	out.Applied = true
	for _, v := range m.votes {
		if v.RaceID != id {
			continue
		}
		out.UserIDs = append(out.UserIDs, v.UserID)
		v.Status = models.VotePending
		v.EarnedPoints = 0
		v.IsPerfect = false
		v.SettledAt = nil
		for _, p := range v.Picks {
			p.IsHit = nil
			p.PointsEarned = 0
		}
		delete(m.transactions, v.ID)
	}
	slices.SortFunc(out.UserIDs, compareUUID)
	return out, nil
}

func (m *memStore) FinishedRaces(_ context.Context, date time.Time) ([]*models.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Race
	for _, r := range m.races {
		if r.Status == models.RaceFinished && r.RaceDate.Format(time.DateOnly) == date.Format(time.DateOnly) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateProfile(_ context.Context, userID uuid.UUID, fn ProfileFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failProfile[userID]; err != nil {
		return err
	}
	p := models.Profile{UserID: userID, RankID: "beginner_1"}
	if cur, ok := m.profiles[userID]; ok {
		p = *cur
	}
	notes, err := fn(&p, m.ledger(userID))
	if err != nil {
		return err
	}
	if err := m.failSave[userID]; err != nil {
		return err
	}
	m.profiles[userID] = &p
	m.notifications = append(m.notifications, notes...)
	return nil
}

func (m *memStore) ledger(userID uuid.UUID) []LedgerEntry {
	var out []LedgerEntry
	for _, v := range m.votes {
		if v.UserID != userID {
			continue
		}
		r := m.races[v.RaceID]
		out = append(out, LedgerEntry{
			VoteID:       v.ID,
			RaceID:       v.RaceID,
			RaceDate:     r.RaceDate,
			PostTime:     r.PostTime,
			Status:       v.Status,
			EarnedPoints: v.EarnedPoints,
			IsPerfect:    v.IsPerfect,
			RivalHit:     pickHit(v, models.PickRival),
			DangerHit:    pickHit(v, models.PickDanger),
		})
	}
	return out
}

func pickHit(v *models.Vote, typ models.PickType) bool {
	for _, p := range v.Picks {
		if p.PickType == typ && p.IsHit != nil && *p.IsHit {
			return true
		}
	}
	return false
}

func (m *memStore) ProfileUserIDs(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for id := range m.profiles {
		out = append(out, id)
	}
	return out, nil
}

func (m *memStore) RecordAudit(_ context.Context, a *models.SettlementAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, a)
	return nil
}

// state is a comparable copy of everything settlement writes.
type state struct {
	Races         map[uuid.UUID]models.Race
	Votes         map[uuid.UUID]models.Vote
	Transactions  map[uuid.UUID][]models.PointTransaction
	Profiles      map[uuid.UUID]models.Profile
	Notifications []models.Notification
}

func (m *memStore) snapshot() state {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := state{
		Races:        map[uuid.UUID]models.Race{},
		Votes:        map[uuid.UUID]models.Vote{},
		Transactions: map[uuid.UUID][]models.PointTransaction{},
		Profiles:     map[uuid.UUID]models.Profile{},
	}
	for id, r := range m.races {
		s.Races[id] = *r
	}
	for id, v := range m.votes {
		s.Votes[id] = *copyVote(v)
	}
	for id, txs := range m.transactions {
		for _, t := range txs {
			s.Transactions[id] = append(s.Transactions[id], *t)
		}
	}
	for id, p := range m.profiles {
		s.Profiles[id] = *p
	}
	for _, n := range m.notifications {
		s.Notifications = append(s.Notifications, *n)
	}
	return s
}

func copyVote(v *models.Vote) *models.Vote {
	cp := *v
	cp.Picks = make([]*models.VotePick, len(v.Picks))
	for i, p := range v.Picks {
		pc := *p
		if p.IsHit != nil {
			hit := *p.IsHit
			pc.IsHit = &hit
		}
		cp.Picks[i] = &pc
	}
	return &cp
}
