package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseYMD(t *testing.T) {
	got, err := ParseYMD("20240105")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if FormatYMD(got) != "20240105" {
		t.Fatalf("round trip failed: %s", FormatYMD(got))
	}
}

func TestParseYMDInvalid(t *testing.T) {
	if _, err := ParseYMD("2024-01-05"); err == nil {
		t.Fatalf("expected error for dashed date")
	}
	if _, err := ParseYMD(""); err == nil {
		t.Fatalf("expected error for empty date")
	}
}

func TestDatesBetween(t *testing.T) {
	from := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	dates := DatesBetween(from, to)
	if len(dates) != 4 {
		t.Fatalf("expected 4 dates, got %d", len(dates))
	}
	if !dates[0].Equal(from) || !dates[3].Equal(to) {
		t.Fatalf("unexpected bounds: %v .. %v", dates[0], dates[3])
	}
}

func TestDatesBetweenInverted(t *testing.T) {
	from := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)
	if dates := DatesBetween(from, to); dates != nil {
		t.Fatalf("expected nil for inverted range, got %d dates", len(dates))
	}
}

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}
