package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/etnz/keepbook/renderer"
	"github.com/google/subcommands"
)

type snapshotCmd struct {
	date     string
	currency string
	group    string
	detail   bool
	accounts string
	json     bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "display the value of the portfolio on a day" }
func (*snapshotCmd) Usage() string {
	return `kb snapshot [-d <date>] [-c <currency>] [-group asset|account|both] [-detail] [-a <id,id>] [-json]

  Values every balance held on the given day in the reporting currency,
  grouped by asset and by account. Accounts whose balance is older than their
  staleness limit are flagged.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", date.Today().String(), "Date of the snapshot.")
	f.StringVar(&c.currency, "c", "", "Reporting currency. Defaults to the configured one.")
	f.StringVar(&c.group, "group", "both", "Grouping: asset, account or both.")
	f.BoolVar(&c.detail, "detail", false, "Include the per-account holdings of each asset in the JSON output.")
	f.StringVar(&c.accounts, "a", "", "Comma separated account ids to value. Defaults to all accounts.")
	f.BoolVar(&c.json, "json", false, "Print the snapshot as JSON.")
}

func (c *snapshotCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	currency := c.currency
	if currency == "" {
		currency = a.cfg.ReportingCurrency
	}
	q := keepbook.SnapshotQuery{
		AsOf:     on,
		Currency: currency,
		GroupBy:  keepbook.ParseGrouping(c.group),
		// Holdings carry the balance dates needed for stale flags.
		IncludeDetail: c.detail || !c.json,
		Accounts:      splitList(c.accounts),
	}
	snapshot, err := a.valuer().Snapshot(ctx, q)
	if err != nil {
		fmt.Fprintf(stderr, "Error computing snapshot: %v\n", err)
		return exitStatus(err)
	}

	if c.json {
		if err := printJSON(snapshot); err != nil {
			fmt.Fprintf(stderr, "Error encoding snapshot: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	staleness, err := a.staleness(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading account configurations: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderSnapshot(renderer.NewSnapshot(snapshot, staleness)))
	return subcommands.ExitSuccess
}

// staleness collects the configured balance age limits.
func (a *app) staleness(ctx context.Context) (renderer.Staleness, error) {
	def, err := a.cfg.Staleness()
	if err != nil {
		return renderer.Staleness{}, err
	}
	s := renderer.Staleness{Default: def, Accounts: make(map[string]time.Duration)}
	accounts, err := a.storage().ListAccounts(ctx)
	if err != nil {
		return s, err
	}
	for _, acc := range accounts {
		cfg, ok, err := a.storage().GetAccountConfig(ctx, acc.ID)
		if err != nil {
			return s, err
		}
		if ok && cfg.BalanceStaleness > 0 {
			s.Accounts[acc.ID] = cfg.BalanceStaleness
		}
	}
	return s, nil
}
