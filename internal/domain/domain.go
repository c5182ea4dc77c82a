package domain

import "time"

// Category identifies which of the two tracked MAL lists a record came from.
// The two categories are tracked independently; a MAL id is only unique
// within its category.
type Category string

const (
	CategoryAnime Category = "anime"
	CategoryManga Category = "manga"
)

// Completion is one completed entry from the tracked profile, normalized
// across the anime and manga list schemas.
type Completion struct {
	MalID      int
	Title      string
	Category   Category
	Score      int       // 0-10, 0 means unscored
	ImageURL   string    // empty when MAL has no picture
	FinishedAt time.Time // zero for legacy entries without a finish date

	// Informational fields carried through to logs and the journal.
	Episodes int
	Volumes  int
	Chapters int
	Year     int
	Genres   []string
}

// FinishedOnOrAfter reports whether the entry has a finish date that falls
// on or after the given calendar day. Entries without a finish date are
// never considered finished "recently".
func (c Completion) FinishedOnOrAfter(day time.Time) bool {
	if c.FinishedAt.IsZero() {
		return false
	}
	y1, m1, d1 := c.FinishedAt.Date()
	y2, m2, d2 := day.Date()
	if y1 != y2 {
		return y1 > y2
	}
	if m1 != m2 {
		return m1 > m2
	}
	return d1 >= d2
}
