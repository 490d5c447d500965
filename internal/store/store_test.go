package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func ranked(keyword, country, subject, date string, rank int) Observation {
	return Observation{
		Keyword:   keyword,
		Country:   country,
		SubjectID: subject,
		Date:      day(date),
		Rank:      rank,
		HasRank:   true,
	}
}

// eachStore runs the same assertions against both implementations.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func TestPointInTimeQueries(t *testing.T) {
	ctx := context.Background()
	key := Key{Keyword: "cat food", Country: "US", SubjectID: "app-a"}

	eachStore(t, func(t *testing.T, s Store) {
		// Observations with a gap: day 1 and day 3, nothing on day 2.
		require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-08-01", 12)))
		require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-08-03", 8)))

		t.Run("latest at exact date", func(t *testing.T) {
			obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-03"))
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, 8, obs.Rank)
		})

		t.Run("latest skips the gap", func(t *testing.T) {
			obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-02"))
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, 12, obs.Rank)
			assert.True(t, obs.Date.Equal(day("2026-08-01")))
		})

		t.Run("latest after all observations", func(t *testing.T) {
			obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-10"))
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, 8, obs.Rank)
		})

		t.Run("latest before all observations is absent", func(t *testing.T) {
			obs, err := s.LatestAtOrBefore(ctx, key, day("2026-07-31"))
			require.NoError(t, err)
			assert.Nil(t, obs)
		})

		t.Run("previous is the prior observation, not the prior day", func(t *testing.T) {
			obs, err := s.PreviousBefore(ctx, key, day("2026-08-03"))
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, 12, obs.Rank)
			assert.True(t, obs.Date.Equal(day("2026-08-01")))
		})

		t.Run("previous of the first observation is absent", func(t *testing.T) {
			obs, err := s.PreviousBefore(ctx, key, day("2026-08-01"))
			require.NoError(t, err)
			assert.Nil(t, obs)
		})

		t.Run("previous with no current is absent", func(t *testing.T) {
			obs, err := s.PreviousBefore(ctx, key, day("2026-07-31"))
			require.NoError(t, err)
			assert.Nil(t, obs)
		})

		t.Run("most recent ever ignores the date bound", func(t *testing.T) {
			obs, err := s.MostRecentEver(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, 8, obs.Rank)
		})

		t.Run("unknown key is absent everywhere", func(t *testing.T) {
			other := Key{Keyword: "dog toys", Country: "GB", SubjectID: "app-b"}
			obs, err := s.MostRecentEver(ctx, other)
			require.NoError(t, err)
			assert.Nil(t, obs)
		})
	})
}

func TestPutLastWriteWins(t *testing.T) {
	ctx := context.Background()
	key := Key{Keyword: "casino game", Country: "US", SubjectID: "app-a"}

	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(ctx, ranked("casino game", "US", "app-a", "2026-08-01", 20)))
		require.NoError(t, s.Put(ctx, ranked("casino game", "US", "app-a", "2026-08-01", 15)))

		obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-01"))
		require.NoError(t, err)
		require.NotNil(t, obs)
		assert.Equal(t, 15, obs.Rank)

		// The overwrite replaced the row; no second observation exists.
		prev, err := s.PreviousBefore(ctx, key, day("2026-08-01"))
		require.NoError(t, err)
		assert.Nil(t, prev)
	})
}

func TestPutPreservesOptionalFields(t *testing.T) {
	ctx := context.Background()
	score := 85.0
	traffic := 1200.0

	eachStore(t, func(t *testing.T, s Store) {
		obs := ranked("casino game", "US", "app-a", "2026-08-01", 15)
		obs.Score = &score
		obs.Traffic = &traffic
		require.NoError(t, s.Put(ctx, obs))

		got, err := s.MostRecentEver(ctx, obs.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.Score)
		assert.Equal(t, 85.0, *got.Score)
		require.NotNil(t, got.Traffic)
		assert.Equal(t, 1200.0, *got.Traffic)
	})
}

func TestPutUnrankedObservation(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s Store) {
		obs := Observation{
			Keyword: "cat food", Country: "US", SubjectID: "app-a",
			Date: day("2026-08-01"),
		}
		require.NoError(t, s.Put(ctx, obs))

		got, err := s.MostRecentEver(ctx, obs.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.HasRank)
	})
}

func TestKeyDerivations(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-08-01", 3)))
		require.NoError(t, s.Put(ctx, ranked("dog toys", "US", "app-b", "2026-08-01", 7)))
		require.NoError(t, s.Put(ctx, ranked("cat food", "GB", "app-a", "2026-08-01", 5)))

		t.Run("countries", func(t *testing.T) {
			countries, err := s.Countries(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"GB", "US"}, countries)
		})

		t.Run("row keys are the union across subjects", func(t *testing.T) {
			rows, err := s.RowKeys(ctx, "US", []string{"app-a", "app-b"})
			require.NoError(t, err)
			assert.Equal(t, []EntityKey{
				{Keyword: "cat food", Country: "US"},
				{Keyword: "dog toys", Country: "US"},
			}, rows)
		})

		t.Run("row keys respect the subject set", func(t *testing.T) {
			rows, err := s.RowKeys(ctx, "US", []string{"app-b"})
			require.NoError(t, err)
			assert.Equal(t, []EntityKey{{Keyword: "dog toys", Country: "US"}}, rows)
		})

		t.Run("row keys with no subjects is empty", func(t *testing.T) {
			rows, err := s.RowKeys(ctx, "US", nil)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("subjects for country", func(t *testing.T) {
			ids, err := s.SubjectsForCountry(ctx, "US")
			require.NoError(t, err)
			assert.Equal(t, []string{"app-a", "app-b"}, ids)

			ids, err = s.SubjectsForCountry(ctx, "GB")
			require.NoError(t, err)
			assert.Equal(t, []string{"app-a"}, ids)
		})
	})
}

func TestSubjectRegistry(t *testing.T) {
	ctx := context.Background()

	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.UpsertSubject(ctx, Subject{ID: "app-a", Name: "App A", Platform: "ios"}))
		require.NoError(t, s.UpsertSubject(ctx, Subject{ID: "app-b", Name: "App B", Platform: "android"}))
		require.NoError(t, s.UpsertSubject(ctx, Subject{ID: "app-a", Name: "App A v2", Platform: "ios"}))

		subjects, err := s.ListSubjects(ctx)
		require.NoError(t, err)
		require.Len(t, subjects, 2)
		assert.Equal(t, "App A v2", subjects[0].Name)
		assert.Equal(t, "android", subjects[1].Platform)
	})
}

func TestDeleteBefore(t *testing.T) {
	ctx := context.Background()
	key := Key{Keyword: "cat food", Country: "US", SubjectID: "app-a"}

	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-07-01", 10)))
		require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-08-01", 8)))
		require.NoError(t, s.Put(ctx, ranked("dog toys", "GB", "app-b", "2026-06-01", 40)))

		removed, err := s.DeleteBefore(ctx, day("2026-08-01"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-01"))
		require.NoError(t, err)
		require.NotNil(t, obs)
		assert.Equal(t, 8, obs.Rank)

		gone, err := s.MostRecentEver(ctx, Key{Keyword: "dog toys", Country: "GB", SubjectID: "app-b"})
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestMemStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := Key{Keyword: "cat food", Country: "US", SubjectID: "app-a"}

	require.NoError(t, s.Put(ctx, ranked("cat food", "US", "app-a", "2026-08-01", 12)))

	obs, err := s.LatestAtOrBefore(ctx, key, day("2026-08-01"))
	require.NoError(t, err)
	obs.Rank = 999

	again, err := s.LatestAtOrBefore(ctx, key, day("2026-08-01"))
	require.NoError(t, err)
	assert.Equal(t, 12, again.Rank)
}
