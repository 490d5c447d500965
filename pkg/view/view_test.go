package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seotools/rankmatrix/pkg/matrix"
)

func intPtr(n int) *int { return &n }

func cell(current, previous int) matrix.Cell {
	c := matrix.Cell{Current: intPtr(current), Previous: intPtr(previous)}
	c.Delta = intPtr(previous - current)
	return c
}

// fixture builds a matrix with two subject columns and a spread of
// gaining, dropping, unchanged and empty rows.
func fixture() *matrix.Matrix {
	return &matrix.Matrix{
		Date:       time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
		Country:    "US",
		SubjectIDs: []string{"app-a", "app-b"},
		Rows: []matrix.Row{
			{Keyword: "ant farm", Country: "US", Cells: map[string]matrix.Cell{
				"app-a": cell(5, 5), // unchanged
			}},
			{Keyword: "bird seed", Country: "US", Cells: map[string]matrix.Cell{
				"app-a": cell(3, 10), // gain of 7
				"app-b": cell(40, 38),
			}},
			{Keyword: "cat food", Country: "US", Cells: map[string]matrix.Cell{
				"app-a": cell(20, 8), // drop of 12
			}},
			{Keyword: "dog toys", Country: "US", Cells: map[string]matrix.Cell{
				"app-b": cell(15, 11), // drop of 4
			}},
			{Keyword: "eel bait", Country: "US", Cells: map[string]matrix.Cell{
				"app-a": {Previous: intPtr(45)}, // dropped out, no delta
			}},
		},
	}
}

func keywords(rows []matrix.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Keyword
	}
	return out
}

func TestFilters(t *testing.T) {
	m := fixture()
	active := m.SubjectIDs

	t.Run("all keeps everything", func(t *testing.T) {
		rows := Apply(m, active, FilterAll, SortAlphabetical)
		assert.Len(t, rows, len(m.Rows))
	})

	t.Run("changed requires a non-zero delta", func(t *testing.T) {
		rows := Apply(m, active, FilterChanged, SortAlphabetical)
		assert.Equal(t, []string{"bird seed", "cat food", "dog toys"}, keywords(rows))
	})

	t.Run("drops", func(t *testing.T) {
		rows := Apply(m, active, FilterDrops, SortAlphabetical)
		assert.Equal(t, []string{"bird seed", "cat food", "dog toys"}, keywords(rows))
	})

	t.Run("gains", func(t *testing.T) {
		rows := Apply(m, active, FilterGains, SortAlphabetical)
		assert.Equal(t, []string{"bird seed"}, keywords(rows))
	})

	t.Run("judged against active columns only", func(t *testing.T) {
		rows := Apply(m, []string{"app-b"}, FilterGains, SortAlphabetical)
		assert.Empty(t, rows, "app-b has no gains; an empty result is valid")
	})

	t.Run("zero active columns never pass change filters", func(t *testing.T) {
		rows := Apply(m, []string{}, FilterChanged, SortAlphabetical)
		assert.Empty(t, rows)

		rows = Apply(m, []string{}, FilterAll, SortAlphabetical)
		assert.Len(t, rows, len(m.Rows), "all is not affected")
	})
}

func TestFilterComposition(t *testing.T) {
	m := fixture()
	active := m.SubjectIDs

	all := keywords(Apply(m, active, FilterAll, SortAlphabetical))
	changed := keywords(Apply(m, active, FilterChanged, SortAlphabetical))
	drops := keywords(Apply(m, active, FilterDrops, SortAlphabetical))

	assert.Subset(t, all, changed)
	assert.Subset(t, changed, drops)
}

func TestSorts(t *testing.T) {
	m := fixture()
	active := m.SubjectIDs

	t.Run("alphabetical", func(t *testing.T) {
		rows := Apply(m, active, FilterAll, SortAlphabetical)
		assert.Equal(t, []string{"ant farm", "bird seed", "cat food", "dog toys", "eel bait"}, keywords(rows))
	})

	t.Run("biggest drops first", func(t *testing.T) {
		rows := Apply(m, active, FilterAll, SortBiggestDrops)
		// cat food -12, dog toys -4, bird seed -2 (app-b), then the
		// dropless rows alphabetically.
		assert.Equal(t, []string{"cat food", "dog toys", "bird seed", "ant farm", "eel bait"}, keywords(rows))
	})

	t.Run("biggest gains first", func(t *testing.T) {
		rows := Apply(m, active, FilterAll, SortBiggestGains)
		assert.Equal(t, "bird seed", rows[0].Keyword)
		// Gainless rows keep alphabetical order at the end.
		assert.Equal(t, []string{"ant farm", "cat food", "dog toys", "eel bait"}, keywords(rows[1:]))
	})

	t.Run("best rank first", func(t *testing.T) {
		rows := Apply(m, active, FilterAll, SortBestRank)
		// bird seed #3, ant farm #5, dog toys #15, cat food #20, then
		// eel bait with no current rank at all.
		assert.Equal(t, []string{"bird seed", "ant farm", "dog toys", "cat food", "eel bait"}, keywords(rows))
	})

	t.Run("ties break alphabetically", func(t *testing.T) {
		m := &matrix.Matrix{
			SubjectIDs: []string{"app-a"},
			Rows: []matrix.Row{
				{Keyword: "zebra", Country: "US", Cells: map[string]matrix.Cell{"app-a": cell(7, 7)}},
				{Keyword: "apple", Country: "US", Cells: map[string]matrix.Cell{"app-a": cell(7, 7)}},
				{Keyword: "apple", Country: "GB", Cells: map[string]matrix.Cell{"app-a": cell(7, 7)}},
			},
		}
		rows := Apply(m, m.SubjectIDs, FilterAll, SortBestRank)
		require.Len(t, rows, 3)
		assert.Equal(t, "apple", rows[0].Keyword)
		assert.Equal(t, "GB", rows[0].Country, "country breaks the keyword tie")
		assert.Equal(t, "US", rows[1].Country)
		assert.Equal(t, "zebra", rows[2].Keyword)
	})
}

func TestSortIsPermutationOnly(t *testing.T) {
	m := fixture()
	active := m.SubjectIDs

	byRank := Apply(m, active, FilterAll, SortBestRank)
	realpha := Apply(&matrix.Matrix{SubjectIDs: active, Rows: byRank}, active, FilterAll, SortAlphabetical)

	assert.ElementsMatch(t, keywords(byRank), keywords(realpha))
	assert.Equal(t, keywords(Apply(m, active, FilterAll, SortAlphabetical)), keywords(realpha))
}

func TestParseFilterAndSort(t *testing.T) {
	assert.Equal(t, FilterChanged, ParseFilter("changed"))
	assert.Equal(t, FilterDrops, ParseFilter("DROPS"))
	assert.Equal(t, FilterAll, ParseFilter("bogus"))
	assert.Equal(t, FilterAll, ParseFilter(""))

	assert.Equal(t, SortBestRank, ParseSort("rank"))
	assert.Equal(t, SortBiggestGains, ParseSort("Gains"))
	assert.Equal(t, SortAlphabetical, ParseSort("bogus"))
	assert.Equal(t, SortAlphabetical, ParseSort(""))
}
