// Package quote extracts prices from JSON documents, such as the ones
// returned by broker and exchange web pages, and turns them into price
// observations.
//
// A document is addressed with a JSONPath expression:
//
//	$.series.intraday.data[-1:][1]
//	$.last
package quote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
)

// Request describes a price to extract.
type Request struct {
	// Asset is the id of the priced asset, e.g. "equity/AAPL/XNAS".
	Asset string
	// Currency is the quote currency of the price.
	Currency string
	// Path is the JSONPath of the price inside the document.
	Path string
	// On is the day of the observation.
	On date.Date
	// Timestamp is the instant of the observation, defaults to the end of On.
	Timestamp time.Time
	Source    string
}

// Decode reads a JSON document keeping numbers exact.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid json document: %w", err)
	}
	return doc, nil
}

// Extract returns the decimal found at path in doc.
//
// Numbers and strings are accepted; strings may use a comma as the decimal
// separator and contain spaces ("1 234,5"). When the path selects a list,
// its first element is used.
func Extract(doc any, path string) (keepbook.Decimal, error) {
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return keepbook.Decimal{}, fmt.Errorf("error evaluating %q: %w", path, err)
	}
	// jsonpath returns a list for wildcard and slice selectors.
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return keepbook.Decimal{}, fmt.Errorf("%q selects nothing", path)
		}
		val = list[0]
	}
	switch v := val.(type) {
	case json.Number:
		return keepbook.ParseDecimal(v.String())
	case float64:
		return keepbook.ParseDecimal(fmt.Sprint(v))
	case string:
		s := strings.ReplaceAll(v, ",", ".")
		s = strings.ReplaceAll(s, " ", "")
		return keepbook.ParseDecimal(s)
	default:
		return keepbook.Decimal{}, fmt.Errorf("%q is not a number: %v", path, val)
	}
}

// Price extracts the price described by req from a JSON document.
func Price(r io.Reader, req Request) (keepbook.PricePoint, error) {
	asset, err := keepbook.ParseAssetID(req.Asset)
	if err != nil {
		return keepbook.PricePoint{}, err
	}
	if strings.TrimSpace(req.Currency) == "" {
		return keepbook.PricePoint{}, fmt.Errorf("%w: missing quote currency for %s", keepbook.ErrInvalidInput, asset.ID())
	}
	if req.On.IsZero() {
		return keepbook.PricePoint{}, fmt.Errorf("%w: missing date for %s", keepbook.ErrInvalidInput, asset.ID())
	}
	doc, err := Decode(r)
	if err != nil {
		return keepbook.PricePoint{}, err
	}
	price, err := Extract(doc, req.Path)
	if err != nil {
		return keepbook.PricePoint{}, fmt.Errorf("cannot read price of %s: %w", asset.ID(), err)
	}
	if price.IsZero() || price.IsNegative() {
		return keepbook.PricePoint{}, fmt.Errorf("%w: price of %s must be positive, got %s", keepbook.ErrInvalidInput, asset.ID(), price)
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = req.On.EndOfDay()
	}
	return keepbook.PricePoint{
		AssetID:       asset.ID(),
		AsOfDate:      req.On,
		Timestamp:     ts.UTC(),
		Price:         price.String(),
		QuoteCurrency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Kind:          keepbook.PriceQuote,
		Source:        req.Source,
	}, nil
}

// PriceBytes is Price on an in-memory document.
func PriceBytes(b []byte, req Request) (keepbook.PricePoint, error) {
	return Price(bytes.NewReader(b), req)
}
