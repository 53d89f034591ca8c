package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/etnz/keepbook/store"
	"github.com/etnz/keepbook/store/sqlstore"
	"github.com/google/subcommands"
)

type importSQLiteCmd struct {
	out string
}

func (*importSQLiteCmd) Name() string     { return "import-sqlite" }
func (*importSQLiteCmd) Synopsis() string { return "copy the data directory into a SQLite database" }
func (*importSQLiteCmd) Usage() string {
	return `kb import-sqlite [-o <database>]

  Copies every connection, account, balance, price and FX rate of the data
  directory into a SQLite database, which can then be used with
  -backend sqlite.
`
}

func (c *importSQLiteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "Path of the database. Defaults to the configured sqlite_path.")
}

func (c *importSQLiteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() { _ = logger.Sync() }()

	m, err := store.Decode(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading data directory: %v\n", err)
		return subcommands.ExitFailure
	}
	path := c.out
	if path == "" {
		path = cfg.DatabasePath()
	}
	db, err := sqlstore.Open(path, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := db.Import(ctx, m); err != nil {
		fmt.Fprintf(stderr, "Error importing data: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Imported %s into %s\n", cfg.DataDir, path)
	return subcommands.ExitSuccess
}
