package store

import (
	"context"
	"time"
)

// Observation is one recorded rank measurement for a keyword/subject/date.
// Rank 1 is the best position; HasRank false means the keyword was checked
// but not ranked within tracked range.
type Observation struct {
	Keyword   string    `json:"keyword"`
	Country   string    `json:"country"`
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	Rank      int       `json:"rank"`
	HasRank   bool      `json:"has_rank"`
	Score     *float64  `json:"score,omitempty"`
	Traffic   *float64  `json:"traffic,omitempty"`
}

// Key identifies one observation series: a matrix row paired with a
// subject column. At most one observation exists per (Key, Date).
type Key struct {
	Keyword   string
	Country   string
	SubjectID string
}

// Key returns the series key of an observation.
func (o Observation) Key() Key {
	return Key{Keyword: o.Keyword, Country: o.Country, SubjectID: o.SubjectID}
}

// EntityKey is the row axis of the matrix: one tracked keyword in one
// country, independent of which subjects have data for it.
type EntityKey struct {
	Keyword string `db:"keyword" json:"keyword"`
	Country string `db:"country" json:"country"`
}

// Subject is a tracked app or brand, the column axis of the matrix.
type Subject struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Platform string `db:"platform" json:"platform"`
}

// Store holds observation history and answers point-in-time rank queries.
// Lookups that find nothing return (nil, nil); absence is not an error.
// Returned observations are copies, never views into internal state.
type Store interface {
	// Put upserts by (Key, Date). Re-ingesting the same key overwrites
	// the stored fields (last write wins).
	Put(ctx context.Context, obs Observation) error

	// LatestAtOrBefore returns the observation with the greatest date
	// at or before the query date.
	LatestAtOrBefore(ctx context.Context, key Key, date time.Time) (*Observation, error)

	// PreviousBefore returns the observation immediately preceding the
	// one LatestAtOrBefore would return for the same arguments. Entities
	// are not observed every day, so this is the prior observation, not
	// the prior calendar day.
	PreviousBefore(ctx context.Context, key Key, date time.Time) (*Observation, error)

	// MostRecentEver returns the newest observation for the key with no
	// date bound. Used to surface "was #N" rows whose current rank has
	// dropped out of tracked range.
	MostRecentEver(ctx context.Context, key Key) (*Observation, error)

	// Countries lists every country code observed at all, sorted.
	Countries(ctx context.Context) ([]string, error)

	// RowKeys lists the union of (keyword, country) pairs observed for
	// any of the given subjects in the given country, sorted by keyword
	// then country.
	RowKeys(ctx context.Context, country string, subjectIDs []string) ([]EntityKey, error)

	// SubjectsForCountry lists subject IDs with at least one observation
	// in the given country, sorted.
	SubjectsForCountry(ctx context.Context, country string) ([]string, error)

	UpsertSubject(ctx context.Context, s Subject) error
	ListSubjects(ctx context.Context) ([]Subject, error)

	// DeleteBefore removes all observations dated before the cutoff and
	// reports how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Day truncates a time to its calendar day in UTC. All observation dates
// pass through here at the store boundary.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
