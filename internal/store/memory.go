package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore implements Store entirely in memory. Each series is kept as a
// date-ascending slice, so point-in-time queries are a binary search over
// that series rather than a scan of the whole table.
type MemStore struct {
	mu       sync.RWMutex
	series   map[Key][]Observation
	subjects map[string]Subject
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		series:   make(map[Key][]Observation),
		subjects: make(map[string]Subject),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) Put(_ context.Context, obs Observation) error {
	obs.Date = Day(obs.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := obs.Key()
	seq := s.series[key]
	i := sort.Search(len(seq), func(i int) bool { return !seq[i].Date.Before(obs.Date) })
	if i < len(seq) && seq[i].Date.Equal(obs.Date) {
		seq[i] = obs
		return nil
	}
	seq = append(seq, Observation{})
	copy(seq[i+1:], seq[i:])
	seq[i] = obs
	s.series[key] = seq
	return nil
}

func (s *MemStore) LatestAtOrBefore(_ context.Context, key Key, date time.Time) (*Observation, error) {
	date = Day(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.series[key]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].Date.After(date) })
	if i == 0 {
		return nil, nil
	}
	obs := seq[i-1]
	return &obs, nil
}

func (s *MemStore) PreviousBefore(_ context.Context, key Key, date time.Time) (*Observation, error) {
	date = Day(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.series[key]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].Date.After(date) })
	// seq[i-1] is what LatestAtOrBefore returns; one slot earlier is the
	// previous observation.
	if i < 2 {
		return nil, nil
	}
	obs := seq[i-2]
	return &obs, nil
}

func (s *MemStore) MostRecentEver(_ context.Context, key Key) (*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.series[key]
	if len(seq) == 0 {
		return nil, nil
	}
	obs := seq[len(seq)-1]
	return &obs, nil
}

func (s *MemStore) Countries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for key := range s.series {
		seen[key.Country] = true
	}
	countries := make([]string, 0, len(seen))
	for c := range seen {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	return countries, nil
}

func (s *MemStore) RowKeys(_ context.Context, country string, subjectIDs []string) ([]EntityKey, error) {
	include := make(map[string]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		include[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[EntityKey]bool)
	for key := range s.series {
		if key.Country != country || !include[key.SubjectID] {
			continue
		}
		seen[EntityKey{Keyword: key.Keyword, Country: key.Country}] = true
	}
	rows := make([]EntityKey, 0, len(seen))
	for ek := range seen {
		rows = append(rows, ek)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Keyword != rows[j].Keyword {
			return rows[i].Keyword < rows[j].Keyword
		}
		return rows[i].Country < rows[j].Country
	})
	return rows, nil
}

func (s *MemStore) SubjectsForCountry(_ context.Context, country string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for key := range s.series {
		if key.Country == country {
			seen[key.SubjectID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) UpsertSubject(_ context.Context, subj Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subj.ID] = subj
	return nil
}

func (s *MemStore) ListSubjects(_ context.Context) ([]Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		subjects = append(subjects, subj)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

func (s *MemStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	cutoff = Day(cutoff)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, seq := range s.series {
		i := sort.Search(len(seq), func(i int) bool { return !seq[i].Date.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += int64(i)
		if i == len(seq) {
			delete(s.series, key)
			continue
		}
		s.series[key] = append([]Observation(nil), seq[i:]...)
	}
	return removed, nil
}
