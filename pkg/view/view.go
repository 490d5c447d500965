// Package view filters and orders matrix rows for presentation. Both
// controls are pure functions: filter first, then sort, no state between
// calls.
package view

import (
	"math"
	"sort"
	"strings"

	"github.com/seotools/rankmatrix/pkg/matrix"
)

// Filter selects which rows survive, judged against the active columns.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterChanged Filter = "changed"
	FilterDrops   Filter = "drops"
	FilterGains   Filter = "gains"
)

// ParseFilter maps a query-param value to a Filter; unknown values mean
// no filtering.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(s)) {
	case FilterChanged, FilterDrops, FilterGains:
		return Filter(strings.ToLower(s))
	default:
		return FilterAll
	}
}

// Sort is a total order over rows; every order breaks ties
// alphabetically.
type Sort string

const (
	SortAlphabetical Sort = "alphabetical"
	SortBiggestDrops Sort = "drops"
	SortBiggestGains Sort = "gains"
	SortBestRank     Sort = "rank"
)

// ParseSort maps a query-param value to a Sort; unknown values mean
// alphabetical.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(s)) {
	case SortBiggestDrops, SortBiggestGains, SortBestRank:
		return Sort(strings.ToLower(s))
	default:
		return SortAlphabetical
	}
}

// noRank sorts rows with no current rank after every real rank.
const noRank = math.MaxInt

// Apply filters then sorts the matrix rows against the active columns and
// returns a new slice. With zero active columns no row passes changed,
// drops or gains. The input matrix is never modified; an empty result is a
// valid result.
func Apply(m *matrix.Matrix, active []string, f Filter, s Sort) []matrix.Row {
	rows := make([]matrix.Row, 0, len(m.Rows))
	for _, row := range m.Rows {
		if passes(row, active, f) {
			rows = append(rows, row)
		}
	}

	sortRows(rows, active, s)
	return rows
}

func passes(row matrix.Row, active []string, f Filter) bool {
	switch f {
	case FilterChanged:
		return anyDelta(row, active, func(d int) bool { return d != 0 })
	case FilterDrops:
		return anyDelta(row, active, func(d int) bool { return d < 0 })
	case FilterGains:
		return anyDelta(row, active, func(d int) bool { return d > 0 })
	default:
		return true
	}
}

func anyDelta(row matrix.Row, active []string, pred func(int) bool) bool {
	for _, id := range active {
		cell, ok := row.Cells[id]
		if ok && cell.Delta != nil && pred(*cell.Delta) {
			return true
		}
	}
	return false
}

func sortRows(rows []matrix.Row, active []string, s Sort) {
	var less func(a, b matrix.Row) bool
	switch s {
	case SortBiggestDrops:
		// Most negative delta first; rows without a drop count as 0 and
		// land last.
		less = func(a, b matrix.Row) bool {
			da, db := worstDelta(a, active), worstDelta(b, active)
			if da != db {
				return da < db
			}
			return alphabeticalLess(a, b)
		}
	case SortBiggestGains:
		less = func(a, b matrix.Row) bool {
			da, db := bestDelta(a, active), bestDelta(b, active)
			if da != db {
				return da > db
			}
			return alphabeticalLess(a, b)
		}
	case SortBestRank:
		less = func(a, b matrix.Row) bool {
			ra, rb := bestRank(a, active), bestRank(b, active)
			if ra != rb {
				return ra < rb
			}
			return alphabeticalLess(a, b)
		}
	default:
		less = alphabeticalLess
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

func alphabeticalLess(a, b matrix.Row) bool {
	ka, kb := strings.ToLower(a.Keyword), strings.ToLower(b.Keyword)
	if ka != kb {
		return ka < kb
	}
	return a.Country < b.Country
}

// worstDelta is the most negative delta among active columns, 0 if none.
func worstDelta(row matrix.Row, active []string) int {
	worst := 0
	for _, id := range active {
		cell, ok := row.Cells[id]
		if ok && cell.Delta != nil && *cell.Delta < worst {
			worst = *cell.Delta
		}
	}
	return worst
}

// bestDelta is the most positive delta among active columns, 0 if none.
func bestDelta(row matrix.Row, active []string) int {
	best := 0
	for _, id := range active {
		cell, ok := row.Cells[id]
		if ok && cell.Delta != nil && *cell.Delta > best {
			best = *cell.Delta
		}
	}
	return best
}

// bestRank is the lowest current rank among active columns, noRank if the
// row has no current rank anywhere.
func bestRank(row matrix.Row, active []string) int {
	best := noRank
	for _, id := range active {
		cell, ok := row.Cells[id]
		if ok && cell.Current != nil && *cell.Current < best {
			best = *cell.Current
		}
	}
	return best
}
