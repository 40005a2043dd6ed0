package main

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveColumnsSubstringMatch(t *testing.T) {
	header := []string{"User Name", "Review Text", "Star Rating", "Created At"}
	cols := resolveColumns(header)

	if cols["text"] != 1 {
		t.Fatalf("expected text column at 1, got %d", cols["text"])
	}
	if cols["rating"] != 2 {
		t.Fatalf("expected rating column at 2, got %d", cols["rating"])
	}
	if cols["author"] != 0 {
		t.Fatalf("expected author column at 0, got %d", cols["author"])
	}
	if cols["date"] != 3 {
		t.Fatalf("expected date column at 3, got %d", cols["date"])
	}
}

func TestResolveColumnsFirstMatchWins(t *testing.T) {
	// Both tokens match the text candidates; the lowest index wins.
	cols := resolveColumns([]string{"comment", "feedback"})
	if cols["text"] != 0 {
		t.Fatalf("expected first matching token to win, got index %d", cols["text"])
	}
}

func TestResolveColumnsMissing(t *testing.T) {
	cols := resolveColumns([]string{"id", "timestamp"})
	if cols["text"] != -1 {
		t.Fatalf("expected -1 for unresolved text column, got %d", cols["text"])
	}
}

func TestIngestCSVSingleRow(t *testing.T) {
	records, report, err := IngestCSV("text,rating\nGreat app,5", "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	fb := records[0]
	if fb.RawText != "Great app" {
		t.Fatalf("expected text 'Great app', got %q", fb.RawText)
	}
	if fb.Rating != 5 {
		t.Fatalf("expected rating 5, got %d", fb.Rating)
	}
	if fb.Source != SourceCSVUpload {
		t.Fatalf("expected source %s, got %s", SourceCSVUpload, fb.Source)
	}
	if fb.OwnerID != "owner-1" {
		t.Fatalf("expected owner-1, got %s", fb.OwnerID)
	}
	if report.Accepted != 1 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestIngestCSVShortTextRejected(t *testing.T) {
	_, _, err := IngestCSV("text\nhi", "owner-1")
	if !errors.Is(err, ErrNoValidRows) {
		t.Fatalf("expected ErrNoValidRows for 2-char text, got %v", err)
	}
}

func TestIngestCSVRatingClamped(t *testing.T) {
	records, _, err := IngestCSV("text,rating\nToo high,9\nToo low,0", "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Rating != 5 {
		t.Fatalf("expected rating 9 clamped to 5, got %d", records[0].Rating)
	}
	if records[1].Rating != 1 {
		t.Fatalf("expected rating 0 clamped to 1, got %d", records[1].Rating)
	}
}

func TestIngestCSVNonNumericRatingIgnored(t *testing.T) {
	records, _, err := IngestCSV("text,rating\nWorks fine,five stars", "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if records[0].Rating != 0 {
		t.Fatalf("expected non-numeric rating to be omitted, got %d", records[0].Rating)
	}
}

func TestIngestCSVMissingTextColumn(t *testing.T) {
	_, _, err := IngestCSV("id,rating\n1,5", "owner-1")
	if !errors.Is(err, ErrMissingTextColumn) {
		t.Fatalf("expected ErrMissingTextColumn, got %v", err)
	}
}

func TestIngestCSVMalformedInput(t *testing.T) {
	for _, input := range []string{"", "text,rating", "\n\n  \n"} {
		_, _, err := IngestCSV(input, "owner-1")
		if !errors.Is(err, ErrMalformedInput) {
			t.Fatalf("input %q: expected ErrMalformedInput, got %v", input, err)
		}
	}
}

func TestIngestCSVSkipsShortRowsSilently(t *testing.T) {
	input := "author,text\nAlice,Love the new dashboard\nBob\nCarol,ok\nDan,Crashes on startup"
	records, report, err := IngestCSV(input, "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if report.Skipped != 2 {
		t.Fatalf("expected 2 skipped rows, got %d", report.Skipped)
	}
	// Output order matches input row order.
	if records[0].RawText != "Love the new dashboard" || records[1].RawText != "Crashes on startup" {
		t.Fatalf("unexpected record order: %q, %q", records[0].RawText, records[1].RawText)
	}
	if records[0].AuthorName != "Alice" || records[1].AuthorName != "Dan" {
		t.Fatalf("unexpected authors: %q, %q", records[0].AuthorName, records[1].AuthorName)
	}
}

func TestIngestCSVQuotedCommaSurvives(t *testing.T) {
	input := "text,rating\n\"Slow, buggy, and unreliable\",2"
	records, _, err := IngestCSV(input, "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	if records[0].RawText != "Slow, buggy, and unreliable" {
		t.Fatalf("expected quoted field to survive, got %q", records[0].RawText)
	}
	if records[0].Rating != 2 {
		t.Fatalf("expected rating 2, got %d", records[0].Rating)
	}
}

func TestIngestCSVManyRowsPreserveOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("feedback\n")
	want := []string{"first comment", "second comment", "third comment"}
	for _, w := range want {
		b.WriteString(w + "\n")
	}
	records, _, err := IngestCSV(b.String(), "owner-1")
	if err != nil {
		t.Fatalf("IngestCSV failed: %v", err)
	}
	for i, w := range want {
		if records[i].RawText != w {
			t.Fatalf("row %d: expected %q, got %q", i, w, records[i].RawText)
		}
	}
}
