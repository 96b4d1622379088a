package settlement

import (
	"cmp"
	"slices"
	"time"

	"github.com/padraicbc/votesettle/models"
)

// Aggregates are the derived profile columns.
type Aggregates struct {
	CumulativePoints int
	MonthlyPoints    int
	TotalVotes       int
	WinHits          int
	PlaceHits        int
	DangerHits       int
	CurrentStreak    int
	BestStreak       int
}

// ComputeAggregates derives profile statistics from a user's full ledger.
// Monthly points count settled votes on races dated in now's calendar month in loc.
// Place and danger hits count settled votes whose rival or danger pick hit.
// Streaks run over votes in race order; a pending vote breaks a run.
func ComputeAggregates(ledger []LedgerEntry, now time.Time, loc *time.Location) Aggregates {
	if loc == nil {
		loc = time.UTC
	}
	ordered := slices.Clone(ledger)
	slices.SortFunc(ordered, compareLedger)

	local := now.In(loc)
	var agg Aggregates
	run := 0
	lastSettled := -1
	for i, v := range ordered {
		if v.Status != models.VoteSettled {
			run = 0
			continue
		}
		lastSettled = i
		agg.TotalVotes++
		agg.CumulativePoints += v.EarnedPoints
		if v.RaceDate.Year() == local.Year() && v.RaceDate.Month() == local.Month() {
			agg.MonthlyPoints += v.EarnedPoints
		}
		if v.RivalHit {
			agg.PlaceHits++
		}
		if v.DangerHit {
			agg.DangerHits++
		}
		if v.IsPerfect {
			agg.WinHits++
			run++
			agg.BestStreak = max(agg.BestStreak, run)
		} else {
			run = 0
		}
	}

	for i := lastSettled; i >= 0; i-- {
		v := ordered[i]
		if v.Status != models.VoteSettled || !v.IsPerfect {
			break
		}
		agg.CurrentStreak++
	}
	return agg
}

// Apply copies the aggregates onto a profile.
func (a Aggregates) Apply(p *models.Profile) {
	p.CumulativePoints = a.CumulativePoints
	p.MonthlyPoints = a.MonthlyPoints
	p.TotalVotes = a.TotalVotes
	p.WinHits = a.WinHits
	p.PlaceHits = a.PlaceHits
	p.DangerHits = a.DangerHits
	p.CurrentStreak = a.CurrentStreak
	p.BestStreak = a.BestStreak
}

func compareLedger(a, b LedgerEntry) int {
	if c := a.RaceDate.Compare(b.RaceDate); c != 0 {
		return c
	}
	if c := comparePostTime(a.PostTime, b.PostTime); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RaceID.String(), b.RaceID.String()); c != 0 {
		return c
	}
	return cmp.Compare(a.VoteID.String(), b.VoteID.String())
}

func comparePostTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
