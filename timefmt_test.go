package keepbook

import (
	"testing"
	"time"
)

func TestFormatTimestamp(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	testCases := []struct {
		in   time.Time
		f    TimestampFormat
		want string
	}{
		{time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), TimestampAuto, "2024-01-02T10:00:00Z"},
		{time.Date(2024, 1, 2, 10, 0, 0, 500_000_000, time.UTC), TimestampAuto, "2024-01-02T10:00:00.5Z"},
		{time.Date(2024, 1, 2, 11, 0, 0, 123_000, paris), TimestampAuto, "2024-01-02T10:00:00.000123Z"},
		{time.Date(2024, 1, 2, 10, 0, 0, 500_000_000, time.UTC), TimestampNanos, "2024-01-02T10:00:00.500000000Z"},
		{time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), TimestampNanos, "2024-01-02T10:00:00.000000000Z"},
	}
	for _, tc := range testCases {
		if got := FormatTimestamp(tc.in, tc.f); got != tc.want {
			t.Errorf("FormatTimestamp(%v, %d) = %q, want %q", tc.in, tc.f, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2024-01-02T11:00:00.5+01:00")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if want := time.Date(2024, 1, 2, 10, 0, 0, 500_000_000, time.UTC); !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("ParseTimestamp = %v, want %v", got, want)
	}
	if _, err := ParseTimestamp("2024-01-02"); err == nil {
		t.Error("ParseTimestamp should reject a bare date")
	}
}
