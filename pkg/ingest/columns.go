package ingest

import (
	"fmt"
	"strings"
)

// field is one logical column of a rank export.
type field string

const (
	fieldKeyword field = "keyword"
	fieldCountry field = "country"
	fieldRank    field = "rank"
	fieldScore   field = "score"
	fieldTraffic field = "traffic"
	fieldDate    field = "date"
)

// alias is one accepted header spelling. Short aliases like "dr" match by
// equality only; substring matching would hit unrelated headers.
type alias struct {
	text      string
	substring bool
}

// fieldAliases maps each logical field to the header spellings seen across
// export sources. Resolved once per file against the header row.
var fieldAliases = map[field][]alias{
	fieldKeyword: {
		{text: "keyword", substring: true},
		{text: "query", substring: true},
		{text: "search term", substring: true},
	},
	fieldCountry: {
		{text: "country", substring: true},
		{text: "region"},
		{text: "location"},
	},
	fieldRank: {
		{text: "rank", substring: true},
		{text: "position", substring: true},
		{text: "pos"},
	},
	fieldScore: {
		{text: "score", substring: true},
		{text: "domain rating", substring: true},
		{text: "dr"},
	},
	fieldTraffic: {
		{text: "traffic", substring: true},
		{text: "volume", substring: true},
		{text: "visits"},
	},
	fieldDate: {
		{text: "date", substring: true},
		{text: "day"},
	},
}

// requiredFields must all resolve or the file is rejected.
var requiredFields = []field{fieldKeyword, fieldCountry, fieldRank}

// MissingColumnError reports a header row that lacks a mandatory column.
type MissingColumnError struct {
	Field string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("header has no recognizable %q column", e.Field)
}

// columnMap holds the resolved index of each logical field, -1 if absent.
type columnMap map[field]int

// resolveColumns matches the header row against the alias table: an exact
// match anywhere in the row wins over a substring match, and the first
// matching header wins within each pass.
func resolveColumns(header []string) (columnMap, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(stripQuotes(h)))
	}

	cols := make(columnMap, len(fieldAliases))
	for f, aliases := range fieldAliases {
		cols[f] = matchField(normalized, aliases)
	}

	for _, f := range requiredFields {
		if cols[f] < 0 {
			return nil, &MissingColumnError{Field: string(f)}
		}
	}
	return cols, nil
}

func matchField(headers []string, aliases []alias) int {
	for _, a := range aliases {
		for i, h := range headers {
			if h == a.text {
				return i
			}
		}
	}
	for _, a := range aliases {
		if !a.substring {
			continue
		}
		for i, h := range headers {
			if strings.Contains(h, a.text) {
				return i
			}
		}
	}
	return -1
}

// detectDelimiter picks the field separator from the header line: tab wins
// over comma when both appear.
func detectDelimiter(headerLine string) rune {
	if strings.ContainsRune(headerLine, '\t') {
		return '\t'
	}
	return ','
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
