package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/keepbook"
	"github.com/google/subcommands"
)

type accountsCmd struct {
	add        string
	connection string
	tags       string
	backfill   string
	exclude    bool
	staleness  time.Duration
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list or add accounts" }
func (*accountsCmd) Usage() string {
	return `kb accounts [-add <name> -connection <name> [-tags <t,t>] [-backfill none|zero|carry_earliest] [-exclude] [-staleness <duration>]]

  Without -add, lists the accounts with their connection and configuration.
  With -add, creates an account, and its connection when no connection has
  this name or id.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Name of the account to create.")
	f.StringVar(&c.connection, "connection", "", "Name or id of the connection of the new account.")
	f.StringVar(&c.tags, "tags", "", "Comma separated tags of the new account.")
	f.StringVar(&c.backfill, "backfill", "", "Balance backfill policy of the new account.")
	f.BoolVar(&c.exclude, "exclude", false, "Exclude the new account from portfolio valuation.")
	f.DurationVar(&c.staleness, "staleness", 0, "Balance staleness limit of the new account.")
}

func (c *accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.add == "" {
		return c.list(ctx)
	}
	if c.connection == "" {
		fmt.Fprintln(stderr, "-connection is required with -add")
		return subcommands.ExitUsageError
	}
	policy, err := keepbook.ParseBackfillPolicy(c.backfill)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	cfg := keepbook.AccountConfig{ExcludeFromPortfolio: c.exclude, BalanceStaleness: c.staleness}
	if c.backfill != "" {
		cfg.BalanceBackfill = policy
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	connections, err := a.storage().ListConnections(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing connections: %v\n", err)
		return closeApp(a, subcommands.ExitFailure)
	}
	var conn keepbook.Connection
	for _, x := range connections {
		if x.ID == c.connection || x.Name == c.connection {
			conn = x
			break
		}
	}
	if conn.ID == "" {
		conn = keepbook.Connection{ID: newID(), Name: c.connection}
		if err := a.addConnection(ctx, conn); err != nil {
			fmt.Fprintf(stderr, "Error creating connection: %v\n", err)
			return closeApp(a, subcommands.ExitFailure)
		}
	}

	acc := keepbook.Account{
		ID:           newID(),
		Name:         c.add,
		ConnectionID: conn.ID,
		Tags:         splitList(c.tags),
		Active:       true,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := a.addAccount(ctx, acc, cfg); err != nil {
		fmt.Fprintf(stderr, "Error creating account: %v\n", err)
		return closeApp(a, subcommands.ExitFailure)
	}
	fmt.Fprintln(stdout, acc.ID)
	return closeApp(a, subcommands.ExitSuccess)
}

func (c *accountsCmd) list(ctx context.Context) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	accounts, err := a.storage().ListAccounts(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing accounts: %v\n", err)
		return subcommands.ExitFailure
	}
	connections, err := a.storage().ListConnections(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing connections: %v\n", err)
		return subcommands.ExitFailure
	}
	names := make(map[string]string, len(connections))
	for _, conn := range connections {
		names[conn.ID] = conn.Name
	}

	var b strings.Builder
	b.WriteString("# Accounts\n\n")
	b.WriteString("| Account | Id | Connection | Tags | Backfill | Portfolio |\n")
	b.WriteString("|:--------|:---|:-----------|:-----|:---------|:----------|\n")
	for _, acc := range accounts {
		cfg, _, err := a.storage().GetAccountConfig(ctx, acc.ID)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading account %q: %v\n", acc.ID, err)
			return subcommands.ExitFailure
		}
		portfolio := "included"
		if cfg.ExcludeFromPortfolio {
			portfolio = "excluded"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			acc.Name, acc.ID, names[acc.ConnectionID], strings.Join(acc.Tags, ", "), cfg.Backfill(), portfolio)
	}
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}
