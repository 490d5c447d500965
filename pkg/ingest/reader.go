package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/seotools/rankmatrix/internal/store"
)

// Options controls how a file is normalized into observations.
type Options struct {
	// SubjectID is the app or brand the file was exported for.
	SubjectID string

	// Delimiter overrides auto-detection when non-zero.
	Delimiter rune

	// DefaultDate is used for rows without a resolvable date column.
	DefaultDate time.Time

	// DefaultCountry is used for rows whose country field is blank.
	DefaultCountry string
}

// Reader turns one delimited export into a forward-only sequence of
// observations. The header row is consumed and resolved on construction;
// each Next call parses one data row. The sequence is a single pass over
// the input and is not restartable.
type Reader struct {
	sc      *bufio.Scanner
	cols    columnMap
	delim   string
	opts    Options
	skipped int
}

// NewReader reads and resolves the header row. It returns a
// *MissingColumnError if keyword, country and rank cannot all be matched.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty file")
	}
	headerLine := strings.TrimPrefix(sc.Text(), "\uFEFF")

	delim := opts.Delimiter
	if delim == 0 {
		delim = detectDelimiter(headerLine)
	}
	delimStr := string(delim)

	cols, err := resolveColumns(strings.Split(headerLine, delimStr))
	if err != nil {
		return nil, err
	}

	return &Reader{sc: sc, cols: cols, delim: delimStr, opts: opts}, nil
}

// Skipped reports how many data rows were dropped so far (blank keyword or
// too few fields). Blank lines are not counted.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next observation, or io.EOF when the input is
// exhausted. Rows that cannot yield an observation are skipped internally,
// so a returned observation always has a keyword and country.
func (r *Reader) Next() (store.Observation, error) {
	for r.sc.Scan() {
		line := r.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		obs, ok := r.parseRow(strings.Split(line, r.delim))
		if !ok {
			r.skipped++
			continue
		}
		return obs, nil
	}

	if err := r.sc.Err(); err != nil {
		return store.Observation{}, fmt.Errorf("read row: %w", err)
	}
	return store.Observation{}, io.EOF
}

func (r *Reader) parseRow(fields []string) (store.Observation, bool) {
	keyword := strings.ToLower(r.fieldAt(fields, fieldKeyword))
	if keyword == "" {
		return store.Observation{}, false
	}

	country := strings.ToUpper(r.fieldAt(fields, fieldCountry))
	if country == "" {
		country = r.opts.DefaultCountry
	}
	if country == "" {
		return store.Observation{}, false
	}

	obs := store.Observation{
		Keyword:   keyword,
		Country:   country,
		SubjectID: r.opts.SubjectID,
		Date:      store.Day(r.opts.DefaultDate),
	}

	// An unparsable rank is recorded as "not ranked", not rejected.
	if n, err := parseInt(r.fieldAt(fields, fieldRank)); err == nil {
		obs.Rank = n
		obs.HasRank = true
	}

	if v, err := parseFloat(r.fieldAt(fields, fieldScore)); err == nil {
		obs.Score = &v
	}
	if v, err := parseFloat(r.fieldAt(fields, fieldTraffic)); err == nil {
		obs.Traffic = &v
	}
	if d, err := parseDate(r.fieldAt(fields, fieldDate)); err == nil {
		obs.Date = d
	}

	return obs, true
}

func (r *Reader) fieldAt(fields []string, f field) string {
	i := r.cols[f]
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(stripQuotes(fields[i]))
}

// parseInt parses a base-10 integer, ignoring thousands separators.
func parseInt(s string) (int, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(s)
}

func parseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
