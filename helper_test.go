package keepbook

import (
	"context"
	"testing"
	"time"

	"github.com/etnz/keepbook/date"
)

// memStorage is an in-memory Storage for tests.
type memStorage struct {
	connections []Connection
	accounts    []Account
	configs     map[string]AccountConfig
	snapshots   map[string][]BalanceSnapshot
	// calls counts GetBalanceSnapshots calls per account.
	calls map[string]int
	err   error
}

func newMemStorage() *memStorage {
	return &memStorage{
		configs:   make(map[string]AccountConfig),
		snapshots: make(map[string][]BalanceSnapshot),
		calls:     make(map[string]int),
	}
}

// account declares an account and returns it for chaining balances.
func (s *memStorage) account(id, name string) *memStorage {
	s.accounts = append(s.accounts, Account{ID: id, Name: name, ConnectionID: "conn-" + id, Active: true})
	s.connections = append(s.connections, Connection{ID: "conn-" + id, Name: "Bank " + name})
	return s
}

func (s *memStorage) balance(id string, ts time.Time, balances ...AssetBalance) *memStorage {
	s.snapshots[id] = append(s.snapshots[id], BalanceSnapshot{Timestamp: ts, Balances: balances})
	return s
}

func (s *memStorage) ListAccounts(context.Context) ([]Account, error) {
	return s.accounts, s.err
}

func (s *memStorage) GetAccountConfig(_ context.Context, id string) (AccountConfig, bool, error) {
	cfg, ok := s.configs[id]
	return cfg, ok, s.err
}

func (s *memStorage) ListConnections(context.Context) ([]Connection, error) {
	return s.connections, s.err
}

func (s *memStorage) GetBalanceSnapshots(_ context.Context, id string) ([]BalanceSnapshot, error) {
	s.calls[id]++
	return s.snapshots[id], s.err
}

// memMarket is an in-memory MarketDataStore for tests.
type memMarket struct {
	prices []PricePoint
	rates  []FxRatePoint
}

func (m *memMarket) price(id AssetID, on date.Date, price, currency string, kind PriceKind) *memMarket {
	m.prices = append(m.prices, PricePoint{
		AssetID:       id,
		AsOfDate:      on,
		Timestamp:     on.Start().Add(17 * time.Hour),
		Price:         price,
		QuoteCurrency: currency,
		Kind:          kind,
		Source:        "test",
	})
	return m
}

func (m *memMarket) rate(base, quote string, on date.Date, rate string) *memMarket {
	m.rates = append(m.rates, FxRatePoint{
		Base:      base,
		Quote:     quote,
		AsOfDate:  on,
		Timestamp: on.Start().Add(16 * time.Hour),
		Rate:      rate,
		Kind:      FxClose,
		Source:    "test",
	})
	return m
}

func (m *memMarket) Price(_ context.Context, id AssetID, on date.Date, kind PriceKind) (PricePoint, bool, error) {
	for _, p := range m.prices {
		if p.AssetID == id && p.AsOfDate == on && p.Kind == kind {
			return p, true, nil
		}
	}
	return PricePoint{}, false, nil
}

func (m *memMarket) AllPrices(_ context.Context, id AssetID) ([]PricePoint, error) {
	var out []PricePoint
	for _, p := range m.prices {
		if p.AssetID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memMarket) FxRate(_ context.Context, base, quote string, on date.Date, kind FxRateKind) (FxRatePoint, bool, error) {
	for _, r := range m.rates {
		if r.Base == base && r.Quote == quote && r.AsOfDate == on && r.Kind == kind {
			return r, true, nil
		}
	}
	return FxRatePoint{}, false, nil
}

func (m *memMarket) AllFxRates(_ context.Context, base, quote string) ([]FxRatePoint, error) {
	var out []FxRatePoint
	for _, r := range m.rates {
		if r.Base == base && r.Quote == quote {
			out = append(out, r)
		}
	}
	return out, nil
}

// ts parses an RFC 3339 instant or fails the test.
func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatalf("invalid timestamp %q: %v", s, err)
	}
	return v
}

func usd(amount string) AssetBalance { return AssetBalance{Asset: Currency("USD"), Amount: amount} }
func eur(amount string) AssetBalance { return AssetBalance{Asset: Currency("EUR"), Amount: amount} }
