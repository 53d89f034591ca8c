package keepbook

import (
	"context"
	"errors"
	"testing"

	"github.com/etnz/keepbook/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockMarket is a MarketDataStore recording its calls.
type mockMarket struct {
	mock.Mock
}

func (m *mockMarket) Price(ctx context.Context, id AssetID, on date.Date, kind PriceKind) (PricePoint, bool, error) {
	args := m.Called(ctx, id, on, kind)
	return args.Get(0).(PricePoint), args.Bool(1), args.Error(2)
}

func (m *mockMarket) AllPrices(ctx context.Context, id AssetID) ([]PricePoint, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]PricePoint), args.Error(1)
}

func (m *mockMarket) FxRate(ctx context.Context, base, quote string, on date.Date, kind FxRateKind) (FxRatePoint, bool, error) {
	args := m.Called(ctx, base, quote, on, kind)
	return args.Get(0).(FxRatePoint), args.Bool(1), args.Error(2)
}

func (m *mockMarket) AllFxRates(ctx context.Context, base, quote string) ([]FxRatePoint, error) {
	args := m.Called(ctx, base, quote)
	return args.Get(0).([]FxRatePoint), args.Error(1)
}

func TestResolver_SameCurrencyNeverReadsStore(t *testing.T) {
	ctx := context.Background()
	m := new(mockMarket)
	r := NewResolver(m)
	on := date.New(2024, 3, 1)

	rate, ok, err := r.FxRate(ctx, "usd", " USD", on)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", rate.Rate)

	for _, amount := range []string{"100.50", "0", "-12.000", "3e2"} {
		got, ok, err := r.ValueInCurrency(ctx, Currency("usd"), MustDecimal(amount), "USD", on)
		require.NoError(t, err)
		require.True(t, ok)
		want, _ := NormalizeDecimal(amount)
		assert.Equal(t, want, got.String())
	}
	m.AssertNotCalled(t, "FxRate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Price", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_PriceFallsBackToQuote(t *testing.T) {
	ctx := context.Background()
	on := date.New(2024, 3, 1)
	id := Equity("AAPL", "").ID()
	quote := PricePoint{AssetID: id, AsOfDate: on, Price: "170.5", QuoteCurrency: "USD", Kind: PriceQuote}

	m := new(mockMarket)
	m.On("Price", ctx, id, on, PriceClose).Return(PricePoint{}, false, nil).Once()
	m.On("Price", ctx, id, on, PriceQuote).Return(quote, true, nil).Once()

	got, ok, err := NewResolver(m).Price(ctx, Equity("aapl", ""), on)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, quote, got)
	m.AssertExpectations(t)
}

func TestResolver_CloseWinsOverQuote(t *testing.T) {
	ctx := context.Background()
	on := date.New(2024, 3, 1)
	id := Equity("AAPL", "").ID()
	closing := PricePoint{AssetID: id, AsOfDate: on, Price: "171", QuoteCurrency: "USD", Kind: PriceClose}

	m := new(mockMarket)
	m.On("Price", ctx, id, on, PriceClose).Return(closing, true, nil).Once()

	got, ok, err := NewResolver(m).Price(ctx, Equity("AAPL", ""), on)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "171", got.Price)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Price", ctx, id, on, PriceQuote)
}

func TestResolver_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	on := date.New(2024, 3, 1)
	boom := errors.New("disk on fire")

	m := new(mockMarket)
	m.On("FxRate", ctx, "EUR", "USD", on, FxClose).Return(FxRatePoint{}, false, boom)

	_, _, err := NewResolver(m).ValueInCurrency(ctx, Currency("eur"), MustDecimal("1"), "usd", on)
	require.ErrorIs(t, err, boom)
}

func TestResolver_Value(t *testing.T) {
	ctx := context.Background()
	on := date.New(2024, 3, 1)
	market := new(memMarket).
		price(Equity("AAPL", "").ID(), on, "200", "USD", PriceClose).
		price(Crypto("BTC", "").ID(), on, "60000", "USD", PriceQuote).
		price(Equity("SAP", "").ID(), on, "150", "EUR", PriceClose).
		rate("EUR", "USD", on, "1.1").
		rate("USD", "EUR", on, "0.9")
	r := NewResolver(market)

	testCases := []struct {
		name   string
		asset  Asset
		amount string
		target string
		want   string // empty when unresolved
	}{
		{"same currency", Currency("USD"), "100.50", "USD", "100.5"},
		{"currency converted", Currency("EUR"), "100", "USD", "110"},
		{"currency without rate", Currency("GBP"), "100", "USD", ""},
		{"equity in quote currency", Equity("AAPL", ""), "10", "USD", "2000"},
		{"equity converted", Equity("AAPL", ""), "10", "EUR", "1800"},
		{"crypto quote price", Crypto("BTC", ""), "0.5", "usd", "30000"},
		{"equity without price", Equity("MSFT", ""), "1", "USD", ""},
		{"equity without rate", Equity("SAP", ""), "2", "GBP", ""},
		{"no triangulation", Currency("GBP"), "1", "EUR", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := r.ValueInCurrency(ctx, tc.asset, MustDecimal(tc.amount), tc.target, on)
			require.NoError(t, err)
			if tc.want == "" {
				assert.False(t, ok, "value should be unresolved, got %s", got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, got.String())
		})
	}

	t.Run("other day", func(t *testing.T) {
		_, ok, err := r.ValueInCurrency(ctx, Equity("AAPL", ""), MustDecimal("1"), "USD", on.Add(1))
		require.NoError(t, err)
		assert.False(t, ok, "prices are not carried forward")
	})

	t.Run("lookups kept when unresolved", func(t *testing.T) {
		v, err := r.Value(ctx, Equity("SAP", ""), MustDecimal("2"), "GBP", on)
		require.NoError(t, err)
		assert.False(t, v.Resolved)
		require.NotNil(t, v.Price)
		assert.Equal(t, "150", v.Price.Price)
		assert.Nil(t, v.Fx)
	})
}
