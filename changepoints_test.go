package keepbook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/etnz/keepbook/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_IntoChangePoints(t *testing.T) {
	var c Collector
	t2 := ts(t, "2024-01-02T10:00:00Z")
	t1 := ts(t, "2024-01-01T10:00:00Z")
	c.AddBalanceChange(t2, "a", Currency("usd"))
	c.AddPriceChange(t2, "equity/MSFT")
	c.AddBalanceChange(t1, "b", Currency("EUR"))
	c.AddFxChange(t2, "eur", "usd")
	c.AddPriceChange(t2, "equity/AAPL")
	c.AddBalanceChange(t2, "a", Currency("USD"))

	points := c.IntoChangePoints()
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.Equal(t1))
	assert.True(t, points[1].Timestamp.Equal(t2))

	assert.Equal(t, []string{
		`balance:a:{"type":"currency","iso_code":"usd"}`,
		`price:equity/AAPL`,
		`fx:EUR/USD`,
		`price:equity/MSFT`,
		`balance:a:{"type":"currency","iso_code":"USD"}`,
	}, points[1].CompactTriggers())

	assert.Empty(t, c.IntoChangePoints(), "collector is consumed")
	assert.Empty(t, c.HeldAssets())
}

func TestCollector_KeepsRepeatedTriggers(t *testing.T) {
	var c Collector
	at := ts(t, "2024-01-01T23:59:59Z")
	c.AddPriceChange(at, "equity/AAPL")
	c.AddPriceChange(at, "equity/AAPL")
	c.AddFxChange(at, "EUR", "USD")
	c.AddFxChange(at, "eur", "usd")

	points := c.IntoChangePoints()
	require.Len(t, points, 1)
	assert.Equal(t, []string{
		"price:equity/AAPL",
		"price:equity/AAPL",
		"fx:EUR/USD",
		"fx:EUR/USD",
	}, points[0].CompactTriggers())
}

func TestCollector_StrictlyAscending(t *testing.T) {
	var c Collector
	for _, s := range []string{
		"2024-01-03T00:00:00Z",
		"2024-01-01T00:00:00.5Z",
		"2024-01-02T00:00:00Z",
		"2024-01-01T00:00:00.5+00:00",
		"2024-01-01T01:00:00.5+01:00",
	} {
		c.AddPriceChange(ts(t, s), "equity/X")
	}
	points := c.IntoChangePoints()
	require.Len(t, points, 3)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i-1].Timestamp.Before(points[i].Timestamp))
	}
}

func TestCollector_HeldAssets(t *testing.T) {
	var c Collector
	c.AddBalanceChange(ts(t, "2024-01-01T00:00:00Z"), "a", Equity("aapl", ""))
	c.AddBalanceChange(ts(t, "2024-01-02T00:00:00Z"), "b", Currency("usd"))
	c.AddBalanceChange(ts(t, "2024-01-03T00:00:00Z"), "b", Equity("AAPL", ""))
	c.AddPriceChange(ts(t, "2024-01-03T00:00:00Z"), "equity/MSFT")
	assert.Equal(t, []AssetID{"currency/USD", "equity/AAPL"}, c.HeldAssets())
}

func TestChangePoint_JSON(t *testing.T) {
	p := ChangePoint{
		Timestamp: ts(t, "2024-01-02T10:00:00.500Z"),
		Triggers: []ChangeTrigger{
			BalanceTrigger{AccountID: "a", Asset: Equity("AAPL", "XNAS")},
			PriceTrigger{AssetID: "equity/AAPL/XNAS"},
			FxRateTrigger{Base: "EUR", Quote: "USD"},
		},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	want := `{"timestamp":"2024-01-02T10:00:00.5Z","triggers":[` +
		`{"type":"balance","account_id":"a","asset":{"type":"equity","ticker":"AAPL","exchange":"XNAS"}},` +
		`{"type":"price","asset_id":"equity/AAPL/XNAS"},` +
		`{"type":"fx_rate","base":"EUR","quote":"USD"}]}`
	assert.Equal(t, want, string(b))
}

func TestCollectChangePoints(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage().
		account("a", "A").
		account("x", "Excluded").
		balance("a", ts(t, "2024-01-01T10:00:00Z"), usd("1"), AssetBalance{Asset: Equity("AAPL", ""), Amount: "2"}).
		balance("a", ts(t, "2024-01-02T23:59:59Z"), usd("1")).
		balance("x", ts(t, "2024-01-01T11:00:00Z"), usd("5"))
	storage.configs["x"] = AccountConfig{ExcludeFromPortfolio: true}
	market := new(memMarket).
		price(Equity("AAPL", "").ID(), date.New(2024, 1, 1), "200", "EUR", PriceClose).
		price(Equity("AAPL", "").ID(), date.New(2024, 1, 2), "201", "EUR", PriceClose).
		price(Equity("MSFT", "").ID(), date.New(2024, 1, 1), "300", "USD", PriceClose).
		rate("EUR", "USD", date.New(2024, 1, 3), "1.1")

	t.Run("balances only", func(t *testing.T) {
		points, err := CollectChangePoints(ctx, storage, market, CollectOptions{})
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Len(t, points[0].Triggers, 2)
		assert.Equal(t, "2024-01-02T23:59:59Z", FormatTimestamp(points[1].Timestamp, TimestampAuto))
	})

	t.Run("with prices", func(t *testing.T) {
		points, err := CollectChangePoints(ctx, storage, market, CollectOptions{IncludePrices: true})
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, []string{"price:equity/AAPL"}, points[1].CompactTriggers())
		// The end of day price shares its instant with the late balance.
		assert.Equal(t, []string{
			`balance:a:{"type":"currency","iso_code":"USD"}`,
			"price:equity/AAPL",
		}, points[2].CompactTriggers())
	})

	t.Run("with fx", func(t *testing.T) {
		points, err := CollectChangePoints(ctx, storage, market, CollectOptions{IncludePrices: true, IncludeFx: true, Currency: "USD"})
		require.NoError(t, err)
		require.Len(t, points, 4)
		assert.Equal(t, []string{"fx:EUR/USD"}, points[3].CompactTriggers())
		assert.Equal(t, date.New(2024, 1, 3), points[3].Date())
	})

	t.Run("same asset listed twice", func(t *testing.T) {
		storage := newMemStorage().
			account("a", "A").
			balance("a", ts(t, "2024-01-01T10:00:00Z"),
				AssetBalance{Asset: Equity("AAPL", ""), Amount: "1"},
				AssetBalance{Asset: Equity("aapl", ""), Amount: "2"})
		market := new(memMarket).
			price(Equity("AAPL", "").ID(), date.New(2024, 1, 1), "200", "USD", PriceClose).
			price(Equity("AAPL", "").ID(), date.New(2024, 1, 1), "201", "USD", PriceQuote)

		points, err := CollectChangePoints(ctx, storage, market, CollectOptions{IncludePrices: true})
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, []string{
			`balance:a:{"type":"equity","ticker":"AAPL"}`,
			`balance:a:{"type":"equity","ticker":"aapl"}`,
		}, points[0].CompactTriggers())
		assert.Equal(t, "2024-01-01T23:59:59Z", FormatTimestamp(points[1].Timestamp, TimestampAuto))
		assert.Equal(t, []string{"price:equity/AAPL", "price:equity/AAPL"}, points[1].CompactTriggers())
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := CollectChangePoints(ctx, storage, market, CollectOptions{Accounts: []string{"zz"}})
		assert.ErrorIs(t, err, ErrUnknownAccount)
	})

	t.Run("explicit excluded account", func(t *testing.T) {
		points, err := CollectChangePoints(ctx, storage, market, CollectOptions{Accounts: []string{"x"}})
		require.NoError(t, err)
		assert.Empty(t, points)
	})
}
