package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
)

// History is the view of a portfolio history used by the markdown templates.
type History struct {
	Currency    string
	Start, End  string
	Granularity string
	Points      []HistoryPoint
	Summary     *HistorySummary
}

// HistoryPoint is one line of the history table.
type HistoryPoint struct {
	Date    string
	Time    string
	Value   string
	Changes string
}

// HistorySummary compares the first and last values.
type HistorySummary struct {
	Initial string
	Final   string
	Change  string
	Percent string
}

// NewHistory builds the view of h.
func NewHistory(h *keepbook.History) *History {
	v := &History{
		Currency:    h.Currency,
		Start:       dateOrDash(h.Start),
		End:         dateOrDash(h.End),
		Granularity: h.Granularity.String(),
	}
	for _, p := range h.Points {
		v.Points = append(v.Points, HistoryPoint{
			Date:    p.Date.String(),
			Time:    p.Timestamp.UTC().Format("15:04:05"),
			Value:   M(p.TotalValue, h.Currency).String(),
			Changes: describeTriggers(p.ChangeTriggers),
		})
	}
	if s := h.Summary; s != nil {
		percent := s.PercentageChange
		if percent != "N/A" {
			if !strings.HasPrefix(percent, "-") {
				percent = "+" + percent
			}
			percent += "%"
		}
		v.Summary = &HistorySummary{
			Initial: M(s.InitialValue, h.Currency).String(),
			Final:   M(s.FinalValue, h.Currency).String(),
			Change:  M(s.AbsoluteChange, h.Currency).SignedString(),
			Percent: percent,
		}
	}
	return v
}

func dateOrDash(d *date.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// describeTriggers counts compact triggers per kind: "2 balance, 1 price".
func describeTriggers(triggers []string) string {
	var kinds []string
	counts := make(map[string]int)
	for _, t := range triggers {
		kind, _, _ := strings.Cut(t, ":")
		if counts[kind] == 0 {
			kinds = append(kinds, kind)
		}
		counts[kind]++
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%d %s", counts[k], k)
	}
	return strings.Join(parts, ", ")
}
