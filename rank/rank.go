// Package rank maps cumulative points to leaderboard tiers.
package rank

// Tier is one rung of the rank ladder.
type Tier struct {
	ID        string
	Name      string
	Threshold int
}

// Tiers is the ladder in ascending threshold order.
var Tiers = []Tier{
	{ID: "beginner_1", Name: "Beginner I", Threshold: 0},
	{ID: "beginner_2", Name: "Beginner II", Threshold: 30},
	{ID: "beginner_3", Name: "Beginner III", Threshold: 80},
	{ID: "beginner_4", Name: "Beginner IV", Threshold: 200},
	{ID: "beginner_5", Name: "Beginner V", Threshold: 400},
	{ID: "forecaster_1", Name: "Forecaster I", Threshold: 700},
	{ID: "forecaster_2", Name: "Forecaster II", Threshold: 1100},
	{ID: "forecaster_3", Name: "Forecaster III", Threshold: 1600},
	{ID: "forecaster_4", Name: "Forecaster IV", Threshold: 2200},
	{ID: "forecaster_5", Name: "Forecaster V", Threshold: 3000},
	{ID: "advanced_1", Name: "Advanced I", Threshold: 4000},
	{ID: "advanced_2", Name: "Advanced II", Threshold: 5500},
	{ID: "advanced_3", Name: "Advanced III", Threshold: 7500},
	{ID: "advanced_4", Name: "Advanced IV", Threshold: 10000},
	{ID: "advanced_5", Name: "Advanced V", Threshold: 13000},
	{ID: "master_1", Name: "Master I", Threshold: 16500},
	{ID: "master_2", Name: "Master II", Threshold: 20500},
	{ID: "master_3", Name: "Master III", Threshold: 25000},
	{ID: "master_4", Name: "Master IV", Threshold: 30000},
	{ID: "master_5", Name: "Master V", Threshold: 36000},
	{ID: "legend", Name: "Legend", Threshold: 45000},
}

// Evaluate returns the highest tier whose threshold is at most points.
// Points below the first threshold map to the first tier.
func Evaluate(points int) Tier {
	return Tiers[position(points)]
}

func position(points int) int {
	for i := len(Tiers) - 1; i >= 0; i-- {
		if points >= Tiers[i].Threshold {
			return i
		}
	}
	return 0
}

// Index returns the position of id in Tiers, or -1 when unknown.
func Index(id string) int {
	for i, t := range Tiers {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Change describes how a stored rank moves after re-evaluation.
type Change int

const (
	Unchanged Change = iota
	Up
	Down
)

// Compare evaluates points against the stored rank id. Unknown stored ids count
// as below the first tier, so any evaluation moves Up.
func Compare(storedID string, points int) (Tier, Change) {
	next := position(points)
	prev := Index(storedID)
	switch {
	case next > prev:
		return Tiers[next], Up
	case next < prev:
		return Tiers[next], Down
	default:
		return Tiers[next], Unchanged
	}
}
