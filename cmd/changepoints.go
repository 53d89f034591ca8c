package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type changePointsCmd struct {
	rangeFlags
	currency string
}

func (*changePointsCmd) Name() string     { return "changepoints" }
func (*changePointsCmd) Synopsis() string { return "list the instants at which the portfolio value may change" }
func (*changePointsCmd) Usage() string {
	return `kb changepoints [-start <date>] [-end <date>] [-g <granularity>] [-strategy first|last] [-a <id,id>] [-prices] [-fx [-c <currency>]]

  Prints, as JSON, every instant at which a balance, a price or an FX rate
  changed, with the changes that happened then.
`
}

func (c *changePointsCmd) SetFlags(f *flag.FlagSet) {
	c.rangeFlags.SetFlags(f)
	f.StringVar(&c.currency, "c", "", "Target currency of FX tracking. Defaults to the configured one.")
}

func (c *changePointsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	q, err := c.query(a.cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	q.Currency = c.currency
	if q.Currency == "" {
		q.Currency = a.cfg.ReportingCurrency
	}

	points, err := a.historian().ChangePoints(ctx, q)
	if err != nil {
		fmt.Fprintf(stderr, "Error collecting change points: %v\n", err)
		return exitStatus(err)
	}
	if err := printJSON(points); err != nil {
		fmt.Fprintf(stderr, "Error encoding change points: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
