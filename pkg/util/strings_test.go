package util

import "testing"

func TestParseSignedInt64(t *testing.T) {
	cases := map[string]int64{
		"":        0,
		"0":       0,
		"123":     123,
		"+123":    123,
		"-456":    -456,
		" 789 ":   789,
		"garbage": 0,
	}
	for in, want := range cases {
		if got := ParseSignedInt64(in); got != want {
			t.Errorf("ParseSignedInt64(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseAbsInt64(t *testing.T) {
	cases := map[string]int64{
		"-70500": 70500,
		"+70500": 70500,
		"70500":  70500,
		"":       0,
	}
	for in, want := range cases {
		if got := ParseAbsInt64(in); got != want {
			t.Errorf("ParseAbsInt64(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if got := ParseIntDefault("x", 7); got != 7 {
		t.Fatalf("got %d, want default 7", got)
	}
}
