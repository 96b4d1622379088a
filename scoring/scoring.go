// Package scoring turns a vote's three picks and a race's official result into
// points. Score is pure: the same input always yields the same Outcome.
package scoring

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/padraicbc/votesettle/models"
)

// Hit grades a single pick.
type Hit int

const (
	Miss Hit = iota
	Partial
	Full
)

func (h Hit) String() string {
	switch h {
	case Full:
		return "full"
	case Partial:
		return "partial"
	default:
		return "miss"
	}
}

// Pick is one pick of a vote.
type Pick struct {
	Type    models.PickType
	EntryID uuid.UUID
}

// Entry is the per-runner data scoring needs. Popularity 0 means unknown.
type Entry struct {
	PostNumber int
	Popularity int
}

// Input is everything needed to score one vote.
type Input struct {
	Picks   []Pick
	Finish  map[uuid.UUID]int
	Entries map[uuid.UUID]Entry
	Payouts []models.Payout
	Grade   string
}

// PickResult is the graded outcome of one pick slot. Present is false when the
// vote had no pick of that type.
type PickResult struct {
	Type     models.PickType
	EntryID  uuid.UUID
	Present  bool
	Position int
	Hit      Hit
	Points   int
}

// Item is one line of the points breakdown.
type Item struct {
	Reason      string
	Amount      int
	Description string
}

// Outcome is the scored vote.
type Outcome struct {
	Points  int
	Perfect bool
	Picks   []PickResult
	Items   []Item
}

var slotOrder = []models.PickType{models.PickFavorite, models.PickRival, models.PickDanger}

// Score grades every pick slot, adds grade and perfect bonuses, and never fails:
// missing picks and runners without a result score as misses.
func Score(t Table, in Input) Outcome {
	bySlot := make(map[models.PickType]Pick, len(slotOrder))
	for _, p := range in.Picks {
		if _, dup := bySlot[p.Type]; !dup {
			bySlot[p.Type] = p
		}
	}

	gradeBonus := t.GradeBonus[in.Grade]
	var out Outcome
	perfect := true
	for _, typ := range slotOrder {
		res := PickResult{Type: typ}
		p, ok := bySlot[typ]
		if ok {
			res.Present = true
			res.EntryID = p.EntryID
			res.Position = in.Finish[p.EntryID]
		}

		var item Item
		switch typ {
		case models.PickFavorite:
			res.Hit, item = scoreFavorite(t, in, res)
		case models.PickRival:
			res.Hit, item = scoreRival(t, res)
		case models.PickDanger:
			res.Hit, item = scoreDanger(t, in, res)
		}

		if res.Hit != Miss {
			item.Amount += gradeBonus
			if gradeBonus > 0 {
				item.Description += fmt.Sprintf(" (%s +%d)", in.Grade, gradeBonus)
			}
			res.Points = item.Amount
			out.Points += item.Amount
			out.Items = append(out.Items, item)
		}
		if res.Hit != Full {
			perfect = false
		}
		out.Picks = append(out.Picks, res)
	}

	if perfect {
		out.Perfect = true
		out.Points += t.PerfectBonus
		out.Items = append(out.Items, Item{
			Reason:      "perfect_bonus",
			Amount:      t.PerfectBonus,
			Description: fmt.Sprintf("perfect prediction +%d", t.PerfectBonus),
		})
	}
	return out
}

func scoreFavorite(t Table, in Input, res PickResult) (Hit, Item) {
	if !res.Present || res.Position <= 0 {
		return Miss, Item{}
	}
	post := in.Entries[res.EntryID].PostNumber
	switch {
	case res.Position == 1:
		odds, ok := dividendOdds(in.Payouts, models.BetWin, post)
		pts := tierPoints(t.WinOdds, odds, ok, t.WinFallback)
		return Full, Item{Reason: "win_hit", Amount: pts, Description: oddsLabel("favorite won", odds, ok, pts)}
	case res.Position <= t.PlacedPositions:
		odds, ok := dividendOdds(in.Payouts, models.BetPlace, post)
		pts := tierPoints(t.PlaceOdds, odds, ok, t.PlaceFallback)
		return Partial, Item{Reason: "place_hit", Amount: pts, Description: oddsLabel("favorite placed", odds, ok, pts)}
	}
	return Miss, Item{}
}

func scoreRival(t Table, res PickResult) (Hit, Item) {
	if !res.Present || res.Position <= 0 {
		return Miss, Item{}
	}
	switch {
	case res.Position == 2:
		return Full, Item{Reason: "rival_hit", Amount: t.RivalExact, Description: fmt.Sprintf("rival finished 2nd +%d", t.RivalExact)}
	case res.Position <= t.PlacedPositions:
		return Partial, Item{Reason: "rival_place_hit", Amount: t.RivalPlaced, Description: fmt.Sprintf("rival finished %s +%d", ordinal(res.Position), t.RivalPlaced)}
	}
	return Miss, Item{}
}

func scoreDanger(t Table, in Input, res PickResult) (Hit, Item) {
	if !res.Present || res.Position <= t.DangerSafePositions {
		return Miss, Item{}
	}
	pop := in.Entries[res.EntryID].Popularity
	pts, ok := t.DangerByPopularity[pop]
	if !ok {
		pts = t.DangerDefault
	}
	label := "unknown popularity"
	if pop > 0 {
		label = "popularity " + strconv.Itoa(pop)
	}
	return Full, Item{Reason: "danger_hit", Amount: pts, Description: fmt.Sprintf("danger horse finished %s (%s) +%d", ordinal(res.Position), label, pts)}
}

// dividendOdds finds the single-runner dividend for a post number as odds
// (amount per 100 staked divided by 100).
func dividendOdds(payouts []models.Payout, betType string, post int) (decimal.Decimal, bool) {
	if post <= 0 {
		return decimal.Zero, false
	}
	combo := strconv.Itoa(post)
	for _, p := range payouts {
		if p.BetType == betType && p.Combination == combo && p.PayoutAmount > 0 {
			return decimal.New(p.PayoutAmount, -2), true
		}
	}
	return decimal.Zero, false
}

func tierPoints(tiers []Tier, odds decimal.Decimal, ok bool, fallback int) int {
	if !ok || len(tiers) == 0 {
		return fallback
	}
	for _, tier := range tiers {
		if tier.MaxOdds == 0 || odds.LessThanOrEqual(decimal.NewFromFloat(tier.MaxOdds)) {
			return tier.Points
		}
	}
	return tiers[len(tiers)-1].Points
}

func oddsLabel(what string, odds decimal.Decimal, ok bool, pts int) string {
	if !ok {
		return fmt.Sprintf("%s +%d", what, pts)
	}
	return fmt.Sprintf("%s at %sx +%d", what, odds.StringFixed(1), pts)
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
