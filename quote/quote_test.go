package quote

import (
	"strings"
	"testing"
	"time"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chart = `{
  "info": {"isin": "LS000IUSD016", "plotlines": [{"label": "previous 1.049", "value": 1.04875}]},
  "series": {"intraday": {"data": [[1700000000, 1.0481], [1700000060, 1.04812345678901234]]}}
}`

func TestExtract(t *testing.T) {
	testCases := []struct {
		doc  string
		path string
		want string
	}{
		{chart, "$.series.intraday.data[-1:][1]", "1.04812345678901234"},
		{chart, "$.info.plotlines[0].value", "1.04875"},
		{`{"last": "1 234,50"}`, "$.last", "1234.5"},
		{`{"bid": 12}`, "$.bid", "12"},
		{`{"prices": [3.5, 4]}`, "$.prices[*]", "3.5"},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			doc, err := Decode(strings.NewReader(tc.doc))
			require.NoError(t, err)
			got, err := Extract(doc, tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	testCases := []struct {
		doc  string
		path string
	}{
		{`{"last": "./."}`, "$.last"},
		{`{"last": true}`, "$.last"},
		{`{"last": 1}`, "$.missing"},
		{`{"prices": []}`, "$.prices[*]"},
	}
	for _, tc := range testCases {
		t.Run(tc.doc, func(t *testing.T) {
			doc, err := Decode(strings.NewReader(tc.doc))
			require.NoError(t, err)
			_, err = Extract(doc, tc.path)
			assert.Error(t, err)
		})
	}
}

func TestPrice(t *testing.T) {
	on := date.New(2024, 3, 1)
	p, err := PriceBytes([]byte(`{"last": 185.64}`), Request{
		Asset:    "equity/aapl/xnas",
		Currency: "usd",
		Path:     "$.last",
		On:       on,
		Source:   "tradegate",
	})
	require.NoError(t, err)
	assert.Equal(t, keepbook.PricePoint{
		AssetID:       "equity/AAPL/XNAS",
		AsOfDate:      on,
		Timestamp:     time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC),
		Price:         "185.64",
		QuoteCurrency: "USD",
		Kind:          keepbook.PriceQuote,
		Source:        "tradegate",
	}, p)
}

func TestPrice_Errors(t *testing.T) {
	on := date.New(2024, 3, 1)
	testCases := []struct {
		name string
		doc  string
		req  Request
	}{
		{"asset", `{"last": 1}`, Request{Asset: "bond/x", Currency: "USD", Path: "$.last", On: on}},
		{"currency", `{"last": 1}`, Request{Asset: "equity/X", Path: "$.last", On: on}},
		{"date", `{"last": 1}`, Request{Asset: "equity/X", Currency: "USD", Path: "$.last"}},
		{"json", `{last`, Request{Asset: "equity/X", Currency: "USD", Path: "$.last", On: on}},
		{"zero", `{"last": 0}`, Request{Asset: "equity/X", Currency: "USD", Path: "$.last", On: on}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PriceBytes([]byte(tc.doc), tc.req)
			assert.Error(t, err)
		})
	}
}
