// Package store provides in-memory and file-backed implementations of the
// keepbook Storage and MarketDataStore interfaces.
//
// A data directory is laid out to be human-readable and git-friendly:
//
//	accounts.yaml          connections, accounts and their configuration
//	balances/2024.jsonl    one balance snapshot per line
//	prices/2024.jsonl      one price observation per line
//	fx/2024.jsonl          one FX rate observation per line
//
// JSONL files are split by year so that appending recent data only touches
// the most recent file.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/google/uuid"
)

// Memory holds connections, accounts, balances and market data in memory.
//
// It implements both keepbook.Storage and keepbook.MarketDataStore, and is
// safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	connections []keepbook.Connection
	accounts    []keepbook.Account
	configs     map[string]keepbook.AccountConfig
	// snapshots are kept in append order per account.
	snapshots map[string][]keepbook.BalanceSnapshot
	prices    map[keepbook.AssetID][]keepbook.PricePoint
	rates     map[Pair][]keepbook.FxRatePoint
}

// Pair is a currency pair, base first.
type Pair struct{ Base, Quote string }

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		configs:   make(map[string]keepbook.AccountConfig),
		snapshots: make(map[string][]keepbook.BalanceSnapshot),
		prices:    make(map[keepbook.AssetID][]keepbook.PricePoint),
		rates:     make(map[Pair][]keepbook.FxRatePoint),
	}
}

// newID returns a fresh time-ordered identifier.
func newID() string { return uuid.Must(uuid.NewV7()).String() }

// AddConnection adds a connection, assigning it an id when it has none, and
// returns it.
func (m *Memory) AddConnection(c keepbook.Connection) (keepbook.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if slices.ContainsFunc(m.connections, func(x keepbook.Connection) bool { return x.ID == c.ID }) {
		return c, fmt.Errorf("connection %q already exists", c.ID)
	}
	m.connections = append(m.connections, c)
	return c, nil
}

// AddAccount adds an account with its configuration, assigning it an id when
// it has none, and returns it. The connection must exist.
func (m *Memory) AddAccount(a keepbook.Account, cfg keepbook.AccountConfig) (keepbook.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if m.account(a.ID) >= 0 {
		return a, fmt.Errorf("account %q already exists", a.ID)
	}
	if a.ConnectionID != "" && !slices.ContainsFunc(m.connections, func(x keepbook.Connection) bool { return x.ID == a.ConnectionID }) {
		return a, fmt.Errorf("account %q: unknown connection %q", a.ID, a.ConnectionID)
	}
	m.accounts = append(m.accounts, a)
	if cfg != (keepbook.AccountConfig{}) {
		m.configs[a.ID] = cfg
	}
	return a, nil
}

// SetAccountConfig replaces the configuration of an existing account.
func (m *Memory) SetAccountConfig(id string, cfg keepbook.AccountConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account(id) < 0 {
		return fmt.Errorf("%w: %q", keepbook.ErrUnknownAccount, id)
	}
	m.configs[id] = cfg
	return nil
}

// AppendBalance appends a balance snapshot to an account. Every amount must
// be a valid decimal and every asset valid.
func (m *Memory) AppendBalance(id string, s keepbook.BalanceSnapshot) error {
	for _, b := range s.Balances {
		if err := b.Asset.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", id, err)
		}
		if _, err := keepbook.ParseDecimal(b.Amount); err != nil {
			return fmt.Errorf("account %q: %w", id, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account(id) < 0 {
		return fmt.Errorf("%w: %q", keepbook.ErrUnknownAccount, id)
	}
	s.Timestamp = s.Timestamp.UTC()
	m.snapshots[id] = append(m.snapshots[id], s)
	return nil
}

// AddPrice records a price observation. An observation with the same asset,
// day and kind replaces the previous one.
func (m *Memory) AddPrice(p keepbook.PricePoint) error {
	if _, err := keepbook.ParseDecimal(p.Price); err != nil {
		return fmt.Errorf("price of %s on %s: %w", p.AssetID, p.AsOfDate, err)
	}
	asset, err := keepbook.ParseAssetID(string(p.AssetID))
	if err != nil {
		return err
	}
	p.AssetID = asset.ID()
	p.QuoteCurrency = normalizeCode(p.QuoteCurrency)
	p.Timestamp = p.Timestamp.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.prices[p.AssetID]
	i := slices.IndexFunc(list, func(x keepbook.PricePoint) bool { return x.AsOfDate == p.AsOfDate && x.Kind == p.Kind })
	if i >= 0 {
		list[i] = p
	} else {
		list = append(list, p)
		slices.SortStableFunc(list, func(a, b keepbook.PricePoint) int { return a.AsOfDate.Compare(b.AsOfDate) })
	}
	m.prices[p.AssetID] = list
	return nil
}

// AddFxRate records an FX rate observation. Currency codes are stored
// upper-cased. An observation with the same pair, day and kind replaces the
// previous one.
func (m *Memory) AddFxRate(r keepbook.FxRatePoint) error {
	if _, err := keepbook.ParseDecimal(r.Rate); err != nil {
		return fmt.Errorf("fx rate %s/%s on %s: %w", r.Base, r.Quote, r.AsOfDate, err)
	}
	r.Base, r.Quote = normalizeCode(r.Base), normalizeCode(r.Quote)
	r.Timestamp = r.Timestamp.UTC()
	k := Pair{r.Base, r.Quote}

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.rates[k]
	i := slices.IndexFunc(list, func(x keepbook.FxRatePoint) bool { return x.AsOfDate == r.AsOfDate && x.Kind == r.Kind })
	if i >= 0 {
		list[i] = r
	} else {
		list = append(list, r)
		slices.SortStableFunc(list, func(a, b keepbook.FxRatePoint) int { return a.AsOfDate.Compare(b.AsOfDate) })
	}
	m.rates[k] = list
	return nil
}

// account returns the index of an account, or -1. Callers hold the lock.
func (m *Memory) account(id string) int {
	return slices.IndexFunc(m.accounts, func(a keepbook.Account) bool { return a.ID == id })
}

// Storage

func (m *Memory) ListAccounts(context.Context) ([]keepbook.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.accounts), nil
}

func (m *Memory) GetAccountConfig(_ context.Context, id string) (keepbook.AccountConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[id]
	return cfg, ok, nil
}

func (m *Memory) ListConnections(context.Context) ([]keepbook.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.connections), nil
}

func (m *Memory) GetBalanceSnapshots(_ context.Context, id string) ([]keepbook.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.snapshots[id]), nil
}

// MarketDataStore

func (m *Memory) Price(_ context.Context, id keepbook.AssetID, on date.Date, kind keepbook.PriceKind) (keepbook.PricePoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.prices[id] {
		if p.AsOfDate == on && p.Kind == kind {
			return p, true, nil
		}
	}
	return keepbook.PricePoint{}, false, nil
}

func (m *Memory) AllPrices(_ context.Context, id keepbook.AssetID) ([]keepbook.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.prices[id]), nil
}

func (m *Memory) FxRate(_ context.Context, base, quote string, on date.Date, kind keepbook.FxRateKind) (keepbook.FxRatePoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rates[Pair{normalizeCode(base), normalizeCode(quote)}] {
		if r.AsOfDate == on && r.Kind == kind {
			return r, true, nil
		}
	}
	return keepbook.FxRatePoint{}, false, nil
}

func (m *Memory) AllFxRates(_ context.Context, base, quote string) ([]keepbook.FxRatePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rates[Pair{normalizeCode(base), normalizeCode(quote)}]), nil
}

// AssetIDs returns the ids of every priced asset, sorted.
func (m *Memory) AssetIDs() []keepbook.AssetID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assetIDs()
}

func (m *Memory) assetIDs() []keepbook.AssetID {
	ids := make([]keepbook.AssetID, 0, len(m.prices))
	for id := range m.prices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Pairs returns every currency pair with rates, sorted.
func (m *Memory) Pairs() []Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairs()
}

func (m *Memory) pairs() []Pair {
	out := make([]Pair, 0, len(m.rates))
	for k := range m.rates {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b Pair) int { return cmp.Or(cmp.Compare(a.Base, b.Base), cmp.Compare(a.Quote, b.Quote)) })
	return out
}
