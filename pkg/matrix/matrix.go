// Package matrix pivots observation history into a cross-tabulated grid:
// one row per (keyword, country), one column per subject, each cell
// annotated with current rank, previous rank and signed delta.
package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/seotools/rankmatrix/internal/store"
)

// Cell is the derived state of one row/column pair at the build date.
// Delta is previous minus current, so a positive delta is an improvement.
// Current nil with Previous set means the keyword dropped out of tracked
// range ("was #N").
type Cell struct {
	Current  *int `json:"current"`
	Previous *int `json:"previous"`
	Delta    *int `json:"delta"`
}

// Row is one matrix row with a cell for every built column.
type Row struct {
	Keyword string          `json:"keyword"`
	Country string          `json:"country"`
	Cells   map[string]Cell `json:"cells"`
}

// Matrix is the pivoted grid for one date and country.
type Matrix struct {
	Date       time.Time `json:"date"`
	Country    string    `json:"country"`
	SubjectIDs []string  `json:"subject_ids"`
	Rows       []Row     `json:"rows"`
}

// Builder computes matrices from a store. It never mutates the store, so
// concurrent builds are safe.
type Builder struct {
	store store.Store
}

// NewBuilder creates a matrix builder over the given store.
func NewBuilder(s store.Store) *Builder {
	return &Builder{store: s}
}

// Build pivots observations for the given date and country across the
// given subject columns. The row set is the union of keys observed for any
// included subject; rows come back sorted by keyword then country, so two
// builds over the same store state are identical.
func (b *Builder) Build(ctx context.Context, date time.Time, country string, subjectIDs []string) (*Matrix, error) {
	date = store.Day(date)

	rowKeys, err := b.store.RowKeys(ctx, country, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("derive row keys: %w", err)
	}

	m := &Matrix{
		Date:       date,
		Country:    country,
		SubjectIDs: append([]string(nil), subjectIDs...),
		Rows:       make([]Row, 0, len(rowKeys)),
	}

	for _, rk := range rowKeys {
		row := Row{
			Keyword: rk.Keyword,
			Country: rk.Country,
			Cells:   make(map[string]Cell, len(subjectIDs)),
		}
		for _, id := range subjectIDs {
			key := store.Key{Keyword: rk.Keyword, Country: rk.Country, SubjectID: id}
			cell, err := b.buildCell(ctx, key, date)
			if err != nil {
				return nil, err
			}
			row.Cells[id] = cell
		}
		m.Rows = append(m.Rows, row)
	}

	return m, nil
}

func (b *Builder) buildCell(ctx context.Context, key store.Key, date time.Time) (Cell, error) {
	current, err := b.store.LatestAtOrBefore(ctx, key, date)
	if err != nil {
		return Cell{}, fmt.Errorf("current observation: %w", err)
	}

	var cell Cell
	if current == nil {
		// Nothing at or before the build date; an observation recorded
		// later still surfaces as "was #N".
		ever, err := b.store.MostRecentEver(ctx, key)
		if err != nil {
			return Cell{}, fmt.Errorf("most recent observation: %w", err)
		}
		if ever != nil && ever.HasRank {
			cell.Previous = intPtr(ever.Rank)
		}
		return cell, nil
	}

	if !current.Date.Equal(date) {
		// Observed earlier but missing from the build date's export:
		// the keyword dropped out of tracked range ("was #N").
		if current.HasRank {
			cell.Previous = intPtr(current.Rank)
		}
		return cell, nil
	}

	if current.HasRank {
		cell.Current = intPtr(current.Rank)
	}

	previous, err := b.store.PreviousBefore(ctx, key, date)
	if err != nil {
		return Cell{}, fmt.Errorf("previous observation: %w", err)
	}
	if previous != nil && previous.HasRank {
		cell.Previous = intPtr(previous.Rank)
	}

	if cell.Current != nil && cell.Previous != nil {
		cell.Delta = intPtr(*cell.Previous - *cell.Current)
	}
	return cell, nil
}

// Countries lists every country with any observation, for pickers.
func (b *Builder) Countries(ctx context.Context) ([]string, error) {
	return b.store.Countries(ctx)
}

// SubjectsForCountry lists subjects with data in the given country, for
// column filtering.
func (b *Builder) SubjectsForCountry(ctx context.Context, country string) ([]string, error) {
	return b.store.SubjectsForCountry(ctx, country)
}

func intPtr(n int) *int { return &n }
