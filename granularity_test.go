package keepbook

import (
	"errors"
	"testing"
	"time"

	"github.com/etnz/keepbook/date"
)

func points(t *testing.T, stamps ...string) []ChangePoint {
	t.Helper()
	out := make([]ChangePoint, len(stamps))
	for i, s := range stamps {
		out[i] = ChangePoint{Timestamp: ts(t, s)}
	}
	return out
}

func stamps(points []ChangePoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = FormatTimestamp(p.Timestamp, TimestampAuto)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseGranularity(t *testing.T) {
	testCases := []struct {
		in   string
		want Granularity
		str  string
	}{
		{"", Full, "full"},
		{"full", Full, "full"},
		{"Hourly", Hourly, "hourly"},
		{"daily", Daily, "daily"},
		{" weekly ", Weekly, "weekly"},
		{"monthly", Monthly, "monthly"},
		{"quarterly", Quarterly, "quarterly"},
		{"yearly", Yearly, "yearly"},
		{"week", Weekly, "weekly"},
		{"Quarter", Quarterly, "quarterly"},
		{"day", Daily, "daily"},
		{"custom:9223372036854", Custom(9223372036854), "custom:9223372036854"},
		{"custom:3600000", Custom(3600000), "custom:3600000"},
		{"custom:0", Custom(0), "custom:0"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseGranularity(tc.in)
			if err != nil {
				t.Fatalf("ParseGranularity(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseGranularity(%q) = %v, want %v", tc.in, got, tc.want)
			}
			if got.String() != tc.str {
				t.Errorf("String() = %q, want %q", got.String(), tc.str)
			}
		})
	}

	for _, bad := range []string{"biweekly", "hour", "custom:", "custom:1h", "custom:9223372036855", "custom:-9223372036855", "custom:9223372036854775807"} {
		if _, err := ParseGranularity(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseGranularity(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyLast {
		t.Errorf("ParseStrategy(\"\") = %q, %v, want last", s, err)
	}
	if s, err := ParseStrategy("First"); err != nil || s != StrategyFirst {
		t.Errorf("ParseStrategy(First) = %q, %v, want first", s, err)
	}
	if _, err := ParseStrategy("middle"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseStrategy(middle) error = %v, want ErrInvalidInput", err)
	}
}

func TestFilterByGranularity(t *testing.T) {
	input := points(t,
		"2024-01-01T09:00:00Z", // Monday
		"2024-01-01T09:30:00Z",
		"2024-01-01T18:00:00Z",
		"2024-01-03T12:00:00Z",
		"2024-01-07T23:59:59Z", // Sunday
		"2024-01-08T00:00:00Z", // Monday
		"2024-02-15T10:00:00Z",
		"2024-04-01T10:00:00Z",
		"2025-01-01T00:00:00Z",
	)
	testCases := []struct {
		name     string
		g        Granularity
		strategy Strategy
		want     []string
	}{
		{"full", Full, StrategyLast, stamps(input)},
		{"custom zero", Custom(0), StrategyFirst, stamps(input)},
		{"custom negative", Custom(-5), StrategyLast, stamps(input)},
		{"hourly last", Hourly, StrategyLast, []string{
			"2024-01-01T09:30:00Z", "2024-01-01T18:00:00Z", "2024-01-03T12:00:00Z", "2024-01-07T23:59:59Z",
			"2024-01-08T00:00:00Z", "2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"daily first", Daily, StrategyFirst, []string{
			"2024-01-01T09:00:00Z", "2024-01-03T12:00:00Z", "2024-01-07T23:59:59Z",
			"2024-01-08T00:00:00Z", "2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"weekly last", Weekly, StrategyLast, []string{
			"2024-01-07T23:59:59Z", "2024-01-08T00:00:00Z", "2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"monthly first", Monthly, StrategyFirst, []string{
			"2024-01-01T09:00:00Z", "2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"quarterly last", Quarterly, StrategyLast, []string{
			"2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"yearly last", Yearly, StrategyLast, []string{
			"2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
		{"custom 12h first", Custom(12 * time.Hour.Milliseconds()), StrategyFirst, []string{
			"2024-01-01T09:00:00Z", "2024-01-01T18:00:00Z", "2024-01-03T12:00:00Z", "2024-01-07T23:59:59Z",
			"2024-01-08T00:00:00Z", "2024-02-15T10:00:00Z", "2024-04-01T10:00:00Z", "2025-01-01T00:00:00Z",
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := stamps(FilterByGranularity(input, tc.g, tc.strategy))
			if !equalStrings(got, tc.want) {
				t.Errorf("FilterByGranularity(%s, %s) =\n%v\nwant\n%v", tc.g, tc.strategy, got, tc.want)
			}
		})
	}
}

func TestFilterByDateRange(t *testing.T) {
	input := points(t,
		"2023-12-31T23:59:59.999Z",
		"2024-01-01T00:00:00Z",
		"2024-01-15T12:00:00Z",
		"2024-01-31T23:59:59.999Z",
		"2024-02-01T00:00:00Z",
	)
	start, end := date.New(2024, 1, 1), date.New(2024, 1, 31)
	testCases := []struct {
		name       string
		start, end *date.Date
		want       []string
	}{
		{"unbounded", nil, nil, stamps(input)},
		{"both", &start, &end, []string{"2024-01-01T00:00:00Z", "2024-01-15T12:00:00Z", "2024-01-31T23:59:59.999Z"}},
		{"start only", &start, nil, []string{"2024-01-01T00:00:00Z", "2024-01-15T12:00:00Z", "2024-01-31T23:59:59.999Z", "2024-02-01T00:00:00Z"}},
		{"end only", nil, &end, []string{"2023-12-31T23:59:59.999Z", "2024-01-01T00:00:00Z", "2024-01-15T12:00:00Z", "2024-01-31T23:59:59.999Z"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := stamps(FilterByDateRange(input, tc.start, tc.end))
			if !equalStrings(got, tc.want) {
				t.Errorf("FilterByDateRange() =\n%v\nwant\n%v", got, tc.want)
			}
		})
	}
}
