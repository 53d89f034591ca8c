package store

import (
	"context"
	"testing"
	"time"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture returns a store with two accounts at one connection, balances,
// a price and a rate.
func fixture(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	c, err := m.AddConnection(keepbook.Connection{ID: "bank", Name: "My Bank", Synchronizer: "manual"})
	require.NoError(t, err)
	_, err = m.AddAccount(keepbook.Account{ID: "checking", Name: "Checking", ConnectionID: c.ID, Active: true}, keepbook.AccountConfig{})
	require.NoError(t, err)
	_, err = m.AddAccount(keepbook.Account{ID: "broker", Name: "Broker", ConnectionID: c.ID, Tags: []string{"invest"}, Active: true},
		keepbook.AccountConfig{BalanceBackfill: keepbook.BackfillZero, BalanceStaleness: 72 * time.Hour})
	require.NoError(t, err)

	require.NoError(t, m.AppendBalance("checking", keepbook.BalanceSnapshot{
		Timestamp: time.Date(2023, 12, 31, 18, 0, 0, 0, time.UTC),
		Balances:  []keepbook.AssetBalance{{Asset: keepbook.Currency("USD"), Amount: "1000"}},
	}))
	require.NoError(t, m.AppendBalance("checking", keepbook.BalanceSnapshot{
		Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 500_000_000, time.UTC),
		Balances:  []keepbook.AssetBalance{{Asset: keepbook.Currency("USD"), Amount: "1200.50"}},
	}))
	require.NoError(t, m.AppendBalance("broker", keepbook.BalanceSnapshot{
		Timestamp: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Balances: []keepbook.AssetBalance{
			{Asset: keepbook.Equity("AAPL", "XNAS"), Amount: "10"},
			{Asset: keepbook.Currency("EUR"), Amount: "50"},
		},
	}))
	require.NoError(t, m.AddPrice(keepbook.PricePoint{
		AssetID:       "equity/aapl/xnas",
		AsOfDate:      date.New(2024, 1, 2),
		Timestamp:     time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC),
		Price:         "185.64",
		QuoteCurrency: "usd",
		Kind:          keepbook.PriceClose,
		Source:        "test",
	}))
	require.NoError(t, m.AddFxRate(keepbook.FxRatePoint{
		Base:      "eur",
		Quote:     "usd",
		AsOfDate:  date.New(2024, 1, 2),
		Timestamp: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
		Rate:      "1.0956",
		Kind:      keepbook.FxClose,
		Source:    "test",
	}))
	return m
}

func TestMemory_Storage(t *testing.T) {
	ctx := context.Background()
	m := fixture(t)

	accounts, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "checking", accounts[0].ID)

	cfg, ok, err := m.GetAccountConfig(ctx, "broker")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, keepbook.BackfillZero, cfg.Backfill())

	_, ok, err = m.GetAccountConfig(ctx, "checking")
	require.NoError(t, err)
	assert.False(t, ok, "default configuration")

	snapshots, err := m.GetBalanceSnapshots(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "1200.50", snapshots[1].Balances[0].Amount)
}

func TestMemory_MarketData(t *testing.T) {
	ctx := context.Background()
	m := fixture(t)
	on := date.New(2024, 1, 2)

	p, ok, err := m.Price(ctx, keepbook.Equity("AAPL", "XNAS").ID(), on, keepbook.PriceClose)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USD", p.QuoteCurrency)

	_, ok, err = m.Price(ctx, keepbook.Equity("AAPL", "XNAS").ID(), on, keepbook.PriceQuote)
	require.NoError(t, err)
	assert.False(t, ok)

	r, ok, err := m.FxRate(ctx, "EUR", "usd", on, keepbook.FxClose)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0956", r.Rate)

	// Same day and kind replaces.
	require.NoError(t, m.AddFxRate(keepbook.FxRatePoint{Base: "EUR", Quote: "USD", AsOfDate: on, Rate: "1.1", Kind: keepbook.FxClose}))
	rates, err := m.AllFxRates(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "1.1", rates[0].Rate)
}

func TestMemory_Validation(t *testing.T) {
	m := fixture(t)

	err := m.AppendBalance("nope", keepbook.BalanceSnapshot{Timestamp: time.Now()})
	assert.ErrorIs(t, err, keepbook.ErrUnknownAccount)

	err = m.AppendBalance("checking", keepbook.BalanceSnapshot{
		Timestamp: time.Now(),
		Balances:  []keepbook.AssetBalance{{Asset: keepbook.Currency("USD"), Amount: "1O0"}},
	})
	assert.ErrorIs(t, err, keepbook.ErrInvalidInput)

	_, err = m.AddAccount(keepbook.Account{ID: "checking"}, keepbook.AccountConfig{})
	assert.Error(t, err, "duplicate id")

	_, err = m.AddAccount(keepbook.Account{Name: "Orphan", ConnectionID: "ghost"}, keepbook.AccountConfig{})
	assert.Error(t, err, "unknown connection")

	a, err := m.AddAccount(keepbook.Account{Name: "New", ConnectionID: "bank"}, keepbook.AccountConfig{})
	require.NoError(t, err)
	assert.Len(t, a.ID, 36, "a uuid is assigned")

	err = m.AddPrice(keepbook.PricePoint{AssetID: "bond/X", AsOfDate: date.New(2024, 1, 1), Price: "1"})
	assert.ErrorIs(t, err, keepbook.ErrInvalidInput)
}

func TestMemory_Snapshot(t *testing.T) {
	m := fixture(t)
	snap, err := keepbook.NewValuer(m, m).Snapshot(context.Background(), keepbook.SnapshotQuery{
		AsOf:     date.New(2024, 1, 2),
		Currency: "USD",
		GroupBy:  keepbook.GroupByAccount,
	})
	require.NoError(t, err)
	// 1200.5 + 10 * 185.64 + 50 * 1.0956
	assert.Equal(t, "3111.68", snap.TotalValue.String())
}
