// Command kb values personal financial accounts and reports their history.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/keepbook/cmd"
	"github.com/google/subcommands"
)

func main() {
	// Answers shell completion requests and exits; does nothing otherwise.
	cmd.Completion(flag.CommandLine).Complete("kb")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
