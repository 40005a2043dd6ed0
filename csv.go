package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrMalformedInput    = errors.New("CSV must contain a header row and at least one data row")
	ErrMissingTextColumn = errors.New("could not find text/comment/feedback/review column in CSV")
	ErrNoValidRows       = errors.New("no valid feedback found in CSV")
)

const minFeedbackTextLen = 3

// columnMatcher maps a logical column to the header substrings that select
// it. Resolution scans header tokens left to right; the first token
// containing any candidate wins, case-insensitive.
type columnMatcher struct {
	column     string
	candidates []string
}

var columnMatchers = []columnMatcher{
	{"text", []string{"text", "comment", "feedback", "review"}},
	{"rating", []string{"rating", "score", "stars"}},
	{"author", []string{"author", "name", "user"}},
	{"date", []string{"date", "time", "created"}},
}

// resolveColumns returns the index of each logical column in the header,
// or -1 when no header token matches.
func resolveColumns(header []string) map[string]int {
	resolved := make(map[string]int, len(columnMatchers))
	for _, m := range columnMatchers {
		resolved[m.column] = -1
		for i, token := range header {
			token = strings.ToLower(strings.TrimSpace(token))
			for _, candidate := range m.candidates {
				if strings.Contains(token, candidate) {
					resolved[m.column] = i
					break
				}
			}
			if resolved[m.column] != -1 {
				break
			}
		}
	}
	return resolved
}

// IngestReport summarizes one ingest run. Skipped counts rows dropped for
// empty or too-short text; they are not errors.
type IngestReport struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

// IngestCSV parses delimited feedback into normalized records. The first
// non-empty row is the header; the text column is required and the whole
// ingest aborts without it. Output order matches input row order. Pure
// transform: persistence is the caller's responsibility.
//
// Rows are tokenized with encoding/csv, so quoted fields containing commas
// survive intact.
func IngestCSV(rawText, ownerID string) ([]Feedback, IngestReport, error) {
	var report IngestReport

	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(rawText)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}
	if len(rows) < 2 {
		return nil, report, ErrMalformedInput
	}

	columns := resolveColumns(rows[0])
	textIdx := columns["text"]
	if textIdx == -1 {
		return nil, report, ErrMissingTextColumn
	}
	ratingIdx := columns["rating"]
	authorIdx := columns["author"]

	var records []Feedback
	for _, row := range rows[1:] {
		if len(row) <= textIdx {
			report.Skipped++
			continue
		}
		text := strings.TrimSpace(row[textIdx])
		if utf8.RuneCountInString(text) < minFeedbackTextLen {
			report.Skipped++
			continue
		}

		fb := Feedback{
			OwnerID: ownerID,
			Source:  SourceCSVUpload,
			RawText: text,
		}
		if ratingIdx != -1 && ratingIdx < len(row) {
			// Non-numeric rating cells are ignored, not an error.
			if n, err := strconv.Atoi(strings.TrimSpace(row[ratingIdx])); err == nil {
				fb.Rating = clampRating(n)
			}
		}
		if authorIdx != -1 && authorIdx < len(row) {
			if author := strings.TrimSpace(row[authorIdx]); author != "" {
				fb.AuthorName = author
			}
		}
		records = append(records, fb)
	}

	if len(records) == 0 {
		return nil, report, ErrNoValidRows
	}
	report.Accepted = len(records)
	return records, report, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
