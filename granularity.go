package keepbook

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/keepbook/date"
)

// GranularityKind is the bucket size used to downsample change points.
type GranularityKind string

const (
	GranularityFull      GranularityKind = "full"
	GranularityHourly    GranularityKind = "hourly"
	GranularityDaily     GranularityKind = "daily"
	GranularityWeekly    GranularityKind = "weekly"
	GranularityMonthly   GranularityKind = "monthly"
	GranularityQuarterly GranularityKind = "quarterly"
	GranularityYearly    GranularityKind = "yearly"
	GranularityCustom    GranularityKind = "custom"
)

// Granularity is a calendar bucket size, or a fixed window for custom ones.
//
// The zero value is GranularityFull.
type Granularity struct {
	Kind GranularityKind
	// Window is the width of custom buckets, counted from the Unix epoch.
	Window time.Duration
}

var (
	Full      = Granularity{Kind: GranularityFull}
	Hourly    = Granularity{Kind: GranularityHourly}
	Daily     = Granularity{Kind: GranularityDaily}
	Weekly    = Granularity{Kind: GranularityWeekly}
	Monthly   = Granularity{Kind: GranularityMonthly}
	Quarterly = Granularity{Kind: GranularityQuarterly}
	Yearly    = Granularity{Kind: GranularityYearly}
)

// maxCustomWindow is the widest custom window, in milliseconds, a
// time.Duration can hold.
const maxCustomWindow = math.MaxInt64 / int64(time.Millisecond)

// Custom returns a granularity of fixed windows of ms milliseconds.
// ms must be within ±maxCustomWindow.
func Custom(ms int64) Granularity {
	return Granularity{Kind: GranularityCustom, Window: time.Duration(ms) * time.Millisecond}
}

// ParseGranularity reads "full", "hourly", "daily", "weekly", "monthly",
// "quarterly", "yearly" or "custom:<milliseconds>". Calendar names also
// accept their short form ("week", "month"...). The empty string is full.
func ParseGranularity(s string) (Granularity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch k := GranularityKind(s); k {
	case "", GranularityFull:
		return Full, nil
	case GranularityHourly:
		return Hourly, nil
	}
	if p, err := date.ParsePeriod(s); err == nil {
		return Granularity{Kind: GranularityKind(p.String())}, nil
	}
	if ms, ok := strings.CutPrefix(s, string(GranularityCustom)+":"); ok {
		n, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return Granularity{}, fmt.Errorf("%w: invalid custom granularity %q", ErrInvalidInput, s)
		}
		if n > maxCustomWindow || n < -maxCustomWindow {
			return Granularity{}, fmt.Errorf("%w: custom granularity %q exceeds %d milliseconds", ErrInvalidInput, s, maxCustomWindow)
		}
		return Custom(n), nil
	}
	return Granularity{}, fmt.Errorf("%w: unknown granularity %q", ErrInvalidInput, s)
}

func (g Granularity) String() string {
	switch g.Kind {
	case "":
		return string(GranularityFull)
	case GranularityCustom:
		return fmt.Sprintf("%s:%d", GranularityCustom, g.Window.Milliseconds())
	default:
		return string(g.Kind)
	}
}

func (g Granularity) MarshalJSON() ([]byte, error) { return json.Marshal(g.String()) }

func (g *Granularity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseGranularity(s)
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Strategy selects which point is kept in each granularity bucket.
type Strategy string

const (
	StrategyFirst Strategy = "first"
	StrategyLast  Strategy = "last"
)

// ParseStrategy reads "first" or "last". The empty string is last.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyLast, nil
	case StrategyFirst, StrategyLast:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, s)
	}
}

// bucketKey returns the start of the bucket of t, in nanoseconds since the
// epoch. It returns false when g does not bucket.
func (g Granularity) bucketKey(t time.Time) (int64, bool) {
	t = t.UTC()
	var period date.Period
	switch g.Kind {
	case GranularityHourly:
		return t.Truncate(time.Hour).UnixNano(), true
	case GranularityDaily:
		return date.Of(t).Start().UnixNano(), true
	case GranularityWeekly:
		period = date.Weekly
	case GranularityMonthly:
		period = date.Monthly
	case GranularityQuarterly:
		period = date.Quarterly
	case GranularityYearly:
		period = date.Yearly
	case GranularityCustom:
		w := g.Window.Milliseconds()
		if w <= 0 {
			return 0, false
		}
		ms := t.UnixMilli()
		n := ms / w
		if ms%w < 0 {
			n--
		}
		return n * w, true
	default:
		return 0, false
	}
	return date.Of(t).StartOf(period).Start().UnixNano(), true
}

// FilterByGranularity keeps one point per bucket of g, the first or the last
// one of the bucket depending on strategy. Points must be in ascending order;
// the result is too.
//
// Full granularity, and custom windows of zero or negative width, return points
// unchanged.
func FilterByGranularity(points []ChangePoint, g Granularity, strategy Strategy) []ChangePoint {
	if len(points) == 0 {
		return points
	}
	if _, ok := g.bucketKey(points[0].Timestamp); !ok {
		return points
	}
	out := make([]ChangePoint, 0, len(points))
	var last int64
	for i, p := range points {
		key, _ := g.bucketKey(p.Timestamp)
		switch {
		case i == 0 || key != last:
			out = append(out, p)
		case strategy == StrategyLast:
			out[len(out)-1] = p
		}
		last = key
	}
	return out
}

// FilterByDateRange keeps the points between the start of start and the end of
// end, both included. A nil bound is open.
func FilterByDateRange(points []ChangePoint, start, end *date.Date) []ChangePoint {
	if start == nil && end == nil {
		return points
	}
	var from, to time.Time
	if start != nil {
		from = start.Start()
	}
	if end != nil {
		to = end.Start().Add(24*time.Hour - time.Millisecond)
	}
	out := make([]ChangePoint, 0, len(points))
	for _, p := range points {
		if start != nil && p.Timestamp.Before(from) {
			continue
		}
		if end != nil && p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
