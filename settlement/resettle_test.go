package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/votesettle/models"
)

func TestResettleRace_CorrectedResultRescoresVotes(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingClosed)
	user := uuid.New()
	vote := m.addVote(user, tr, tr.a, tr.b, tr.c)
	e := newTestEngine(t, m, Config{})

	_, err := e.SettleRace(context.Background(), tr.id, "admin")
	require.NoError(t, err)
	require.Equal(t, 290, m.profiles[user].CumulativePoints)
	require.Len(t, m.notifications, 1)

	m.setFinish(tr, tr.b, tr.a, tr.c, tr.d)
	res, err := e.ResettleRace(context.Background(), tr.id, "steward")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)

	// favorite placed 2nd 15, rival 1st 10, danger 20
	v := m.votes[vote]
	assert.Equal(t, 45, v.EarnedPoints)
	assert.False(t, v.IsPerfect)
	assert.Len(t, m.transactions[vote], 3)

	p := m.profiles[user]
	assert.Equal(t, 45, p.CumulativePoints)
	assert.Equal(t, 0, p.WinHits)
	assert.Equal(t, 1, p.PlaceHits)
	assert.Equal(t, 1, p.DangerHits)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, "beginner_2", p.RankID)
	assert.Len(t, m.notifications, 1, "rank decrease must not notify")
	assert.Equal(t, models.RaceFinished, m.races[tr.id].Status)

	require.Len(t, m.audits, 2)
	assert.Equal(t, "resettle", m.audits[1].Action)
	assert.Equal(t, "steward", m.audits[1].Actor)
}

func TestResettleRace_WithdrawnResultsStillRecomputeProfiles(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingClosed)
	user := uuid.New()
	vote := m.addVote(user, tr, tr.a, tr.b, tr.c)
	e := newTestEngine(t, m, Config{})
	_, err := e.SettleRace(context.Background(), tr.id, "admin")
	require.NoError(t, err)

	m.results[tr.id] = nil
	res, err := e.ResettleRace(context.Background(), tr.id, "steward")

	var noResults *NoResultsError
	require.ErrorAs(t, err, &noResults)
	assert.False(t, res.Success)
	assert.Equal(t, models.RaceVotingClosed, m.races[tr.id].Status)
	assert.Equal(t, models.VotePending, m.votes[vote].Status)
	assert.Empty(t, m.transactions[vote])
	for _, p := range m.votes[vote].Picks {
		assert.Nil(t, p.IsHit)
	}
	assert.Equal(t, 0, m.profiles[user].CumulativePoints)
	assert.Equal(t, 0, m.profiles[user].TotalVotes)
}

func TestResettleRace_RefusesWhileSettling(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceSettling)
	started := fixedAt.Add(-time.Minute)
	m.races[tr.id].SettlingStartedAt = &started

	_, err := newTestEngine(t, m, Config{LockTTL: 10 * time.Minute}).ResettleRace(context.Background(), tr.id, "steward")
	var settling *AlreadySettlingError
	assert.ErrorAs(t, err, &settling)
	assert.Equal(t, models.RaceSettling, m.races[tr.id].Status)
}

func TestResettleRace_ClearsExpiredLock(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceSettling)
	started := fixedAt.Add(-time.Hour)
	m.races[tr.id].SettlingStartedAt = &started
	vote := m.addVote(uuid.New(), tr, tr.a, tr.b, tr.c)

	res, err := newTestEngine(t, m, Config{LockTTL: 10 * time.Minute}).ResettleRace(context.Background(), tr.id, "steward")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)
	assert.Equal(t, models.RaceFinished, m.races[tr.id].Status)
	assert.Nil(t, m.races[tr.id].SettlingStartedAt)
	assert.Equal(t, 290, m.votes[vote].EarnedPoints)
}

// A pass that outlived its lock must not write over a re-settlement that
// corrected the result in the meantime.
func TestResettleRace_FencesOffExpiredOwner(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingClosed)
	vote := m.addVote(uuid.New(), tr, tr.a, tr.b, tr.c)

	slowAt := fixedAt.Add(-time.Hour)
	entered, proceed := make(chan struct{}), make(chan struct{})
	m.beforeApply = func(w VoteWrite) {
		if w.LockedAt.Equal(slowAt) {
			close(entered)
			<-proceed
		}
	}
	cfg := Config{LockTTL: 10 * time.Minute}
	slow := newTestEngine(t, m, cfg, WithClock(func() time.Time { return slowAt }))

	slowErr := make(chan error, 1)
	go func() {
		_, err := slow.SettleRace(context.Background(), tr.id, "slow")
		slowErr <- err
	}()
	<-entered

	m.mu.Lock()
	m.setFinish(tr, tr.b, tr.a, tr.c, tr.d)
	m.mu.Unlock()
	res, err := newTestEngine(t, m, cfg).ResettleRace(context.Background(), tr.id, "steward")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SettledCount)

	close(proceed)
	assert.ErrorIs(t, <-slowErr, ErrLockLost)

	assert.Equal(t, models.RaceFinished, m.races[tr.id].Status)
	assert.Equal(t, 45, m.votes[vote].EarnedPoints)
	assert.False(t, m.votes[vote].IsPerfect)
}

func TestResettleRace_NotifiesVoteSettledOnce(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingClosed)
	vote := m.addVote(uuid.New(), tr, tr.a, tr.b, tr.c)
	e := newTestEngine(t, m, Config{NotifyVoteSettled: true})

	_, err := e.SettleRace(context.Background(), tr.id, "admin")
	require.NoError(t, err)
	for range 2 {
		_, err := e.ResettleRace(context.Background(), tr.id, "steward")
		require.NoError(t, err)
	}

	var settled []*models.Notification
	for _, n := range m.notifications {
		if n.Type == models.NotificationVoteSettled {
			settled = append(settled, n)
		}
	}
	require.Len(t, settled, 1)
	require.NotNil(t, settled[0].VoteID)
	assert.Equal(t, vote, *settled[0].VoteID)
}

func TestResettleRace_RefusesOpenRace(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingOpen)

	_, err := newTestEngine(t, m, Config{}).ResettleRace(context.Background(), tr.id, "steward")
	var status *RaceStatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, models.RaceVotingOpen, status.Status)
}

func TestResettleRace_RepeatedRunsAreStable(t *testing.T) {
	m := newMemStore()
	tr := m.addRace(day(18), models.RaceVotingClosed)
	for range 3 {
		m.addVote(uuid.New(), tr, tr.a, tr.c, tr.d)
	}
	e := newTestEngine(t, m, Config{})
	_, err := e.SettleRace(context.Background(), tr.id, "admin")
	require.NoError(t, err)
	first := m.snapshot()

	for range 2 {
		_, err := e.ResettleRace(context.Background(), tr.id, "steward")
		require.NoError(t, err)
	}
	again := m.snapshot()
	for id, v := range first.Votes {
		assert.Equal(t, v.EarnedPoints, again.Votes[id].EarnedPoints)
	}
	assert.Equal(t, first.Profiles, again.Profiles)
	assert.Equal(t, len(first.Notifications), len(again.Notifications))
}

func TestResettleDate(t *testing.T) {
	m := newMemStore()
	e := newTestEngine(t, m, Config{})
	var onDay []testRace
	for range 2 {
		tr := m.addRace(day(18), models.RaceVotingClosed)
		m.addVote(uuid.New(), tr, tr.a, tr.b, tr.c)
		_, err := e.SettleRace(context.Background(), tr.id, "admin")
		require.NoError(t, err)
		onDay = append(onDay, tr)
	}
	other := m.addRace(day(17), models.RaceFinished)
	m.addRace(day(18), models.RaceVotingOpen)
	m.results[onDay[1].id] = nil

	batch, err := e.ResettleDate(context.Background(), day(18), "steward")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", batch.RaceDate)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.NotEqual(t, other.id, r.RaceID)
	}
}
