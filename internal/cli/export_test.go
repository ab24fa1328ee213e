package cli

import (
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "")
	if err != nil || got != nil {
		t.Fatalf("empty flag: got %v, %v", got, err)
	}

	got, err = parseTimeFlag("from", "2024-05-01T10:00:00Z")
	if err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if !got.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("rfc3339 parsed as %v", got)
	}

	got, err = parseTimeFlag("to", "2024-05-02")
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	if !got.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.Local)) {
		t.Fatalf("date parsed as %v", got)
	}

	if _, err := parseTimeFlag("to", "yesterday"); err == nil {
		t.Fatal("expected error for free text")
	}
}
