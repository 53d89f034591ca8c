package keepbook

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/etnz/keepbook/date"
	"go.uber.org/zap"
)

// TriggerType names the variant of a ChangeTrigger.
type TriggerType string

const (
	TriggerBalance TriggerType = "balance"
	TriggerPrice   TriggerType = "price"
	TriggerFxRate  TriggerType = "fx_rate"
)

// ChangeTrigger is the fact that caused a change point: a balance, a price or
// an FX rate update.
type ChangeTrigger interface {
	Type() TriggerType
	// Compact returns the one-line form used in history reports.
	Compact() string
	MarshalJSON() ([]byte, error)
}

// BalanceTrigger is a new balance of an asset in an account.
type BalanceTrigger struct {
	AccountID string
	Asset     Asset
}

func (BalanceTrigger) Type() TriggerType { return TriggerBalance }

// Compact returns "balance:<account_id>:<asset json>".
func (t BalanceTrigger) Compact() string {
	asset, err := t.Asset.MarshalJSON()
	if err != nil {
		// Asset fields are plain strings.
		panic(err)
	}
	return fmt.Sprintf("balance:%s:%s", t.AccountID, asset)
}

func (t BalanceTrigger) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("type", TriggerBalance)
	w.Append("account_id", t.AccountID)
	w.Append("asset", t.Asset)
	return w.MarshalJSON()
}

// PriceTrigger is a new price of an asset.
type PriceTrigger struct {
	AssetID AssetID
}

func (PriceTrigger) Type() TriggerType { return TriggerPrice }

// Compact returns "price:<asset_id>".
func (t PriceTrigger) Compact() string { return "price:" + string(t.AssetID) }

func (t PriceTrigger) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("type", TriggerPrice)
	w.Append("asset_id", t.AssetID)
	return w.MarshalJSON()
}

// FxRateTrigger is a new rate for a currency pair.
type FxRateTrigger struct {
	Base  string
	Quote string
}

func (FxRateTrigger) Type() TriggerType { return TriggerFxRate }

// Compact returns "fx:<base>/<quote>".
func (t FxRateTrigger) Compact() string { return "fx:" + t.Base + "/" + t.Quote }

func (t FxRateTrigger) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("type", TriggerFxRate)
	w.Append("base", t.Base)
	w.Append("quote", t.Quote)
	return w.MarshalJSON()
}

// ChangePoint is an instant at which the portfolio value may have changed,
// with every trigger recorded at that instant.
type ChangePoint struct {
	Timestamp time.Time
	Triggers  []ChangeTrigger
}

// Date returns the UTC calendar day of the change point.
func (p ChangePoint) Date() date.Date { return date.Of(p.Timestamp) }

// CompactTriggers returns the compact form of every trigger, nil when there is none.
func (p ChangePoint) CompactTriggers() []string {
	if len(p.Triggers) == 0 {
		return nil
	}
	out := make([]string, len(p.Triggers))
	for i, t := range p.Triggers {
		out[i] = t.Compact()
	}
	return out
}

func (p ChangePoint) MarshalJSON() ([]byte, error) {
	triggers := p.Triggers
	if triggers == nil {
		triggers = []ChangeTrigger{}
	}
	var w jsonObjectWriter
	w.Append("timestamp", FormatTimestamp(p.Timestamp, TimestampAuto))
	w.Append("triggers", triggers)
	return w.MarshalJSON()
}

// bucket holds the triggers recorded at one instant.
type bucket struct {
	timestamp time.Time
	triggers  []ChangeTrigger
}

// Collector accumulates change triggers and reduces them to an ordered list of
// change points. It serves a single request and is not safe for concurrent use.
//
// The zero value is ready to use.
type Collector struct {
	buckets map[int64]*bucket
	held    map[AssetID]bool
}

func (c *Collector) add(ts time.Time, t ChangeTrigger) {
	if c.buckets == nil {
		c.buckets = make(map[int64]*bucket)
	}
	ts = ts.UTC()
	key := ts.UnixNano()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{timestamp: ts}
		c.buckets[key] = b
	}
	b.triggers = append(b.triggers, t)
}

// AddBalanceChange records a new balance of asset in an account. The trigger
// keeps the asset as provided.
func (c *Collector) AddBalanceChange(ts time.Time, accountID string, asset Asset) {
	if c.held == nil {
		c.held = make(map[AssetID]bool)
	}
	c.held[asset.ID()] = true
	c.add(ts, BalanceTrigger{AccountID: accountID, Asset: asset})
}

// AddPriceChange records a new price of an asset.
func (c *Collector) AddPriceChange(ts time.Time, id AssetID) {
	c.add(ts, PriceTrigger{AssetID: id})
}

// AddFxChange records a new rate for a currency pair.
func (c *Collector) AddFxChange(ts time.Time, base, quote string) {
	c.add(ts, FxRateTrigger{Base: normalizeCode(base), Quote: normalizeCode(quote)})
}

// HeldAssets returns the assets referenced by a balance trigger so far, sorted.
func (c *Collector) HeldAssets() []AssetID {
	ids := make([]AssetID, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IntoChangePoints returns the change points in ascending timestamp order and
// empties the collector.
//
// Triggers keep their arrival order within a change point, except price
// triggers which are sorted by asset id among themselves.
func (c *Collector) IntoChangePoints() []ChangePoint {
	points := make([]ChangePoint, 0, len(c.buckets))
	for _, b := range c.buckets {
		sortPriceTriggers(b.triggers)
		points = append(points, ChangePoint{Timestamp: b.timestamp, Triggers: b.triggers})
	}
	slices.SortFunc(points, func(a, b ChangePoint) int { return a.Timestamp.Compare(b.Timestamp) })
	c.buckets, c.held = nil, nil
	return points
}

// sortPriceTriggers sorts the price triggers by asset id, leaving the other
// triggers where they are.
func sortPriceTriggers(triggers []ChangeTrigger) {
	var positions []int
	var prices []PriceTrigger
	for i, t := range triggers {
		if p, ok := t.(PriceTrigger); ok {
			positions = append(positions, i)
			prices = append(prices, p)
		}
	}
	if len(prices) < 2 {
		return
	}
	slices.SortStableFunc(prices, func(a, b PriceTrigger) int { return cmp.Compare(a.AssetID, b.AssetID) })
	for i, pos := range positions {
		triggers[pos] = prices[i]
	}
}

// CollectOptions scopes a change point collection.
type CollectOptions struct {
	// Accounts restricts the collection to these account ids. Empty means all.
	Accounts []string
	// IncludePrices adds a trigger per stored price of every held asset.
	IncludePrices bool
	// IncludeFx adds a trigger per stored rate converting a held currency, or
	// the quote currency of a held asset, into Currency.
	IncludeFx bool
	Currency  string
}

// CollectChangePoints collects the change points of the portfolio: one per
// balance snapshot of every included account, and optionally one per price
// and FX rate day.
//
// Prices and rates are anchored at the end of their calendar day so that they
// sort after any balance recorded during that day.
func CollectChangePoints(ctx context.Context, storage Storage, market MarketDataStore, o CollectOptions, opts ...Option) ([]ChangePoint, error) {
	logger := newOptions(opts).logger
	accounts, err := storage.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list accounts: %w", err)
	}
	accounts, err = selectAccounts(accounts, o.Accounts)
	if err != nil {
		return nil, err
	}

	var c Collector
	for _, account := range accounts {
		cfg, _, err := storage.GetAccountConfig(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot read config of account %q: %w", account.ID, err)
		}
		if cfg.ExcludeFromPortfolio {
			continue
		}
		snapshots, err := storage.GetBalanceSnapshots(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot read balances of account %q: %w", account.ID, err)
		}
		for _, s := range snapshots {
			for _, b := range s.Balances {
				c.AddBalanceChange(s.Timestamp, account.ID, b.Asset)
			}
		}
	}

	held := c.HeldAssets()
	// Currencies whose conversion into the reporting currency matters.
	currencies := make(map[string]bool)
	for _, id := range held {
		if a, err := ParseAssetID(string(id)); err == nil && a.Kind == KindCurrency {
			currencies[a.ISOCode] = true
		}
	}
	if o.IncludePrices {
		for _, id := range held {
			prices, err := market.AllPrices(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("cannot read prices of %s: %w", id, err)
			}
			for _, p := range prices {
				c.AddPriceChange(p.AsOfDate.EndOfDay(), id)
				if p.QuoteCurrency != "" {
					currencies[normalizeCode(p.QuoteCurrency)] = true
				}
			}
		}
	}
	if o.IncludeFx && o.Currency != "" {
		target := normalizeCode(o.Currency)
		codes := make([]string, 0, len(currencies))
		for code := range currencies {
			if code != target {
				codes = append(codes, code)
			}
		}
		slices.Sort(codes)
		for _, code := range codes {
			rates, err := market.AllFxRates(ctx, code, target)
			if err != nil {
				return nil, fmt.Errorf("cannot read fx rates %s/%s: %w", code, target, err)
			}
			for _, r := range rates {
				c.AddFxChange(r.AsOfDate.EndOfDay(), code, target)
			}
		}
	}

	points := c.IntoChangePoints()
	logger.Debug("change points collected", zap.Int("accounts", len(accounts)), zap.Int("assets", len(held)), zap.Int("points", len(points)))
	return points, nil
}
