package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RaceStatus is the lifecycle state of a race.
type RaceStatus string

const (
	RaceScheduled    RaceStatus = "scheduled"
	RaceVotingOpen   RaceStatus = "voting_open"
	RaceVotingClosed RaceStatus = "voting_closed"
	// RaceSettling is held only while a settlement pass owns the race.
	RaceSettling RaceStatus = "settling"
	RaceFinished RaceStatus = "finished"
)

// Race represents a race open to prediction votes.
type Race struct {
	bun.BaseModel `bun:"table:races,alias:rc"`

	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	CourseID          uuid.UUID  `bun:"course_id,type:uuid,notnull" json:"course_id"`
	Name              string     `bun:"name,notnull" json:"name"`
	RaceDate          time.Time  `bun:"race_date,notnull,type:date" json:"race_date"`
	PostTime          *time.Time `bun:"post_time" json:"post_time,omitempty"`
	Grade             *string    `bun:"grade" json:"grade,omitempty"`
	Status            RaceStatus `bun:"status,notnull,default:'scheduled'" json:"status"`
	SettlingStartedAt *time.Time `bun:"settling_started_at" json:"-"`

	Course  *Course      `bun:"rel:belongs-to,join:course_id=id" json:"-"`
	Entries []*RaceEntry `bun:"rel:has-many,join:id=race_id" json:"entries,omitempty"`
}

// GradeOrEmpty returns the race grade or "" when ungraded.
func (r *Race) GradeOrEmpty() string {
	if r.Grade == nil {
		return ""
	}
	return *r.Grade
}

// RaceEntry is a horse's registration in a race. Immutable once the race starts.
type RaceEntry struct {
	bun.BaseModel `bun:"table:race_entries,alias:re"`

	ID         uuid.UUID `bun:"id,pk,nullzero,type:uuid,default:gen_random_uuid()" json:"id"`
	RaceID     uuid.UUID `bun:"race_id,type:uuid,notnull,unique:race_entries_post" json:"race_id"`
	HorseID    uuid.UUID `bun:"horse_id,type:uuid,notnull" json:"horse_id"`
	PostNumber int       `bun:"post_number,notnull,unique:race_entries_post" json:"post_number"`
	Odds       *float64  `bun:"odds" json:"odds,omitempty"`
	Popularity *int      `bun:"popularity" json:"popularity,omitempty"`

	Horse *Horse `bun:"rel:belongs-to,join:horse_id=id" json:"-"`
}
