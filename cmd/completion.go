package cmd

import (
	"flag"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// flagPredictors complete flag values that have a fixed set of choices.
var flagPredictors = map[string]complete.Predictor{
	"group":     predict.Set{"asset", "account", "both"},
	"g":         predict.Set{"full", "hourly", "daily", "weekly", "monthly", "quarterly", "yearly"},
	"strategy":  predict.Set{"first", "last"},
	"backfill":  predict.Set{"none", "zero", "carry_earliest"},
	"backend":   predict.Set{backendJSONL, backendSQLite},
	"log-level": predict.Set{"debug", "info", "warn", "error"},
	"config":    predict.Files("*.toml"),
	"data-dir":  predict.Dirs("*"),
	"o":         predict.Files("*.db"),
}

// Completion returns the shell completion tree of the command line: global
// flags, every subcommand and their flags.
func Completion(global *flag.FlagSet) *complete.Command {
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: predictFlags(global),
	}
	for _, c := range Commands {
		fs := flag.NewFlagSet(c.Command.Name(), flag.ContinueOnError)
		c.Command.SetFlags(fs)
		sub := &complete.Command{Flags: predictFlags(fs)}
		if c.Command.Name() == "import-quote" {
			sub.Args = predict.Files("*.json")
		}
		root.Sub[c.Command.Name()] = sub
	}
	for _, name := range []string{"help", "flags", "commands"} {
		root.Sub[name] = &complete.Command{}
	}
	return root
}

func predictFlags(fs *flag.FlagSet) map[string]complete.Predictor {
	flags := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if p, ok := flagPredictors[f.Name]; ok {
			flags[f.Name] = p
			return
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			flags[f.Name] = predict.Nothing
			return
		}
		flags[f.Name] = predict.Something
	})
	return flags
}
