package scoring

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier awards Points when the dividend odds are at most MaxOdds.
// A MaxOdds of 0 leaves the tier unbounded.
type Tier struct {
	MaxOdds float64 `yaml:"max_odds"`
	Points  int     `yaml:"points"`
}

// Table holds every number the scoring rule uses. Swapping the table changes
// scoring without touching settlement.
type Table struct {
	// Favorite finishing 1st, tiered by the win dividend.
	WinOdds     []Tier `yaml:"win_odds"`
	WinFallback int    `yaml:"win_fallback"`

	// Favorite finishing 2nd..PlacedPositions, tiered by its place dividend.
	PlaceOdds     []Tier `yaml:"place_odds"`
	PlaceFallback int    `yaml:"place_fallback"`

	PlacedPositions int `yaml:"placed_positions"`

	// Rival finishing exactly 2nd, or anywhere else in the placed group.
	RivalExact  int `yaml:"rival_exact"`
	RivalPlaced int `yaml:"rival_placed"`

	// Danger hits when the horse finishes behind the first DangerSafePositions.
	DangerSafePositions int         `yaml:"danger_safe_positions"`
	DangerByPopularity  map[int]int `yaml:"danger_by_popularity"`
	DangerDefault       int         `yaml:"danger_default"`

	GradeBonus   map[string]int `yaml:"grade_bonus"`
	PerfectBonus int            `yaml:"perfect_bonus"`
}

// DefaultTable is the production scoring table.
func DefaultTable() Table {
	return Table{
		WinOdds: []Tier{
			{MaxOdds: 1.9, Points: 20},
			{MaxOdds: 3.9, Points: 40},
			{MaxOdds: 6.9, Points: 60},
			{MaxOdds: 14.9, Points: 100},
			{MaxOdds: 29.9, Points: 150},
			{MaxOdds: 0, Points: 250},
		},
		WinFallback: 40,
		PlaceOdds: []Tier{
			{MaxOdds: 1.4, Points: 10},
			{MaxOdds: 2.4, Points: 15},
			{MaxOdds: 3.9, Points: 25},
			{MaxOdds: 6.9, Points: 40},
			{MaxOdds: 0, Points: 60},
		},
		PlaceFallback:       15,
		PlacedPositions:     3,
		RivalExact:          30,
		RivalPlaced:         10,
		DangerSafePositions: 2,
		DangerByPopularity:  map[int]int{1: 50, 2: 40, 3: 30, 4: 20, 5: 15},
		DangerDefault:       10,
		GradeBonus:          map[string]int{"G1": 30, "G2": 15, "G3": 10, "L": 5, "OP": 5},
		PerfectBonus:        200,
	}
}

// LoadTable reads a YAML scoring table. Keys missing from the file keep their
// DefaultTable values. An empty path returns DefaultTable.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read scoring table: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse scoring table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate reports tables that would make scoring ambiguous.
func (t Table) Validate() error {
	var errs []error
	if t.PlacedPositions < 2 {
		errs = append(errs, fmt.Errorf("placed_positions must be at least 2, got %d", t.PlacedPositions))
	}
	if t.DangerSafePositions < 1 {
		errs = append(errs, fmt.Errorf("danger_safe_positions must be at least 1, got %d", t.DangerSafePositions))
	}
	if err := validateTiers("win_odds", t.WinOdds); err != nil {
		errs = append(errs, err)
	}
	if err := validateTiers("place_odds", t.PlaceOdds); err != nil {
		errs = append(errs, err)
	}
	for name, v := range map[string]int{
		"win_fallback":   t.WinFallback,
		"place_fallback": t.PlaceFallback,
		"rival_exact":    t.RivalExact,
		"rival_placed":   t.RivalPlaced,
		"danger_default": t.DangerDefault,
		"perfect_bonus":  t.PerfectBonus,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func validateTiers(name string, tiers []Tier) error {
	prev := 0.0
	for i, tier := range tiers {
		if tier.Points < 0 {
			return fmt.Errorf("%s[%d]: points must not be negative", name, i)
		}
		if tier.MaxOdds == 0 {
			if i != len(tiers)-1 {
				return fmt.Errorf("%s[%d]: only the last tier may be unbounded", name, i)
			}
			continue
		}
		if tier.MaxOdds <= prev {
			return fmt.Errorf("%s[%d]: max_odds must ascend", name, i)
		}
		prev = tier.MaxOdds
	}
	return nil
}
