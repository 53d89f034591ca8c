package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/etnz/keepbook/date"
	"github.com/etnz/keepbook/quote"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

type importQuoteCmd struct {
	asset    string
	currency string
	path     string
	date     string
	source   string
}

func (*importQuoteCmd) Name() string     { return "import-quote" }
func (*importQuoteCmd) Synopsis() string { return "record a price read from a JSON document" }
func (*importQuoteCmd) Usage() string {
	return `kb import-quote -asset <asset-id> -currency <code> -path <jsonpath> [-d <date>] [-source <name>] <file.json|->

  Reads a JSON document, for instance a quote saved from a broker web page,
  extracts the price at the JSONPath and records it as a quote price of the
  asset.

Usage Examples:
$ curl -s 'https://example.com/quote?isin=US0378331005' | kb import-quote -asset equity/AAPL -currency EUR -path '$.last' -

`
}

func (c *importQuoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "asset", "", "Asset id, e.g. equity/AAPL/XNAS or crypto/BTC/bitcoin.")
	f.StringVar(&c.currency, "currency", "", "Quote currency of the price.")
	f.StringVar(&c.path, "path", "", "JSONPath of the price in the document, e.g. $.last.")
	f.StringVar(&c.date, "d", date.Today().String(), "Date of the price.")
	f.StringVar(&c.source, "source", "", "Name of the data source.")
}

func (c *importQuoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.asset == "" || c.currency == "" || c.path == "" || f.NArg() != 1 {
		fmt.Fprintln(stderr, "-asset, -currency, -path and exactly one document are required")
		return subcommands.ExitUsageError
	}
	on, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	var r io.Reader = os.Stdin
	if name := f.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening document: %v\n", err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		r = file
	}

	p, err := quote.Price(r, quote.Request{
		Asset:    c.asset,
		Currency: c.currency,
		Path:     c.path,
		On:       on,
		Source:   c.source,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error reading quote: %v\n", err)
		return exitStatus(err)
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.addPrice(ctx, p); err != nil {
		fmt.Fprintf(stderr, "Error recording price: %v\n", err)
		return closeApp(a, subcommands.ExitFailure)
	}
	a.logger.Info("price recorded", zap.String("asset", string(p.AssetID)), zap.Stringer("date", p.AsOfDate), zap.String("price", p.Price))
	fmt.Fprintf(stdout, "%s %s %s %s\n", p.AsOfDate, p.AssetID, p.Price, p.QuoteCurrency)
	return closeApp(a, subcommands.ExitSuccess)
}
