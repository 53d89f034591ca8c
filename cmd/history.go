package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/etnz/keepbook/renderer"
	"github.com/google/subcommands"
)

// rangeFlags are the flags shared by history and changepoints.
type rangeFlags struct {
	start, end  string
	granularity string
	strategy    string
	accounts    string
	prices      bool
	fx          bool
}

func (r *rangeFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.start, "start", "", "First day of the range. Defaults to the first change.")
	f.StringVar(&r.end, "end", "", "Last day of the range. Defaults to the last change.")
	f.StringVar(&r.granularity, "g", "", "Granularity: full, hourly, daily, weekly, monthly, quarterly, yearly or custom:<ms>. Defaults to the configured one.")
	f.StringVar(&r.strategy, "strategy", "", "Point kept per period: first or last. Defaults to the configured one.")
	f.StringVar(&r.accounts, "a", "", "Comma separated account ids. Defaults to all accounts.")
	f.BoolVar(&r.prices, "prices", false, "Also track price changes of held assets.")
	f.BoolVar(&r.fx, "fx", false, "Also track FX rate changes of held currencies.")
}

// query converts the flags, with defaults from cfg, into a change points query.
func (r *rangeFlags) query(cfg *Config) (keepbook.ChangePointsQuery, error) {
	q := keepbook.ChangePointsQuery{
		Accounts:      splitList(r.accounts),
		IncludePrices: r.prices || cfg.History.IncludePrices,
		IncludeFx:     r.fx,
	}
	var err error
	if q.Start, err = optionalDate(r.start); err != nil {
		return q, err
	}
	if q.End, err = optionalDate(r.end); err != nil {
		return q, err
	}
	g := r.granularity
	if g == "" {
		g = cfg.History.Granularity
	}
	if q.Granularity, err = keepbook.ParseGranularity(g); err != nil {
		return q, err
	}
	s := r.strategy
	if s == "" {
		s = cfg.History.Strategy
	}
	if q.Strategy, err = keepbook.ParseStrategy(s); err != nil {
		return q, err
	}
	return q, nil
}

func optionalDate(s string) (*date.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keepbook.ErrInvalidInput, err)
	}
	return &d, nil
}

// exitStatus maps an engine error to an exit status.
func exitStatus(err error) subcommands.ExitStatus {
	if errors.Is(err, keepbook.ErrInvalidInput) || errors.Is(err, keepbook.ErrUnknownAccount) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

type historyCmd struct {
	rangeFlags
	currency string
	json     bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display the value of the portfolio over time" }
func (*historyCmd) Usage() string {
	return `kb history [-c <currency>] [-start <date>] [-end <date>] [-g <granularity>] [-strategy first|last] [-a <id,id>] [-prices] [-fx] [-json]

  Values the portfolio at every change point: each balance snapshot and,
  optionally, each price or FX rate change. The -g flag keeps one point per
  period.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	c.rangeFlags.SetFlags(f)
	f.StringVar(&c.currency, "c", "", "Reporting currency. Defaults to the configured one.")
	f.BoolVar(&c.json, "json", false, "Print the history as JSON.")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	cq, err := c.query(a.cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	q := keepbook.HistoryQuery{
		Currency:      c.currency,
		Start:         cq.Start,
		End:           cq.End,
		Granularity:   cq.Granularity,
		Strategy:      cq.Strategy,
		Accounts:      cq.Accounts,
		IncludePrices: cq.IncludePrices,
		IncludeFx:     cq.IncludeFx,
	}
	if q.Currency == "" {
		q.Currency = a.cfg.ReportingCurrency
	}

	history, err := a.historian().History(ctx, q)
	if err != nil {
		fmt.Fprintf(stderr, "Error computing history: %v\n", err)
		return exitStatus(err)
	}

	if c.json {
		if err := printJSON(history); err != nil {
			fmt.Fprintf(stderr, "Error encoding history: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.RenderHistory(renderer.NewHistory(history)))
	return subcommands.ExitSuccess
}
