package keepbook

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/keepbook/date"
	"go.uber.org/zap"
)

// PriceKind tells how a price observation was produced.
type PriceKind string

const (
	PriceClose    PriceKind = "close"
	PriceAdjClose PriceKind = "adj_close"
	PriceQuote    PriceKind = "quote"
)

// FxRateKind tells how an FX rate observation was produced.
type FxRateKind string

const FxClose FxRateKind = "close"

// PricePoint is one stored price of an asset.
type PricePoint struct {
	AssetID       AssetID   `json:"asset_id"`
	AsOfDate      date.Date `json:"as_of_date"`
	Timestamp     time.Time `json:"timestamp"`
	Price         string    `json:"price"`
	QuoteCurrency string    `json:"quote_currency"`
	Kind          PriceKind `json:"kind"`
	Source        string    `json:"source"`
}

// FxRatePoint is one stored exchange rate: 1 Base is worth Rate Quote.
type FxRatePoint struct {
	Base      string     `json:"base"`
	Quote     string     `json:"quote"`
	AsOfDate  date.Date  `json:"as_of_date"`
	Timestamp time.Time  `json:"timestamp"`
	Rate      string     `json:"rate"`
	Kind      FxRateKind `json:"kind"`
	Source    string     `json:"source"`
}

// priceFallback is the order in which price kinds are tried for valuation.
// Adjusted closes are stored but not used to value holdings.
var priceFallback = []PriceKind{PriceClose, PriceQuote}

// Resolver resolves prices, FX rates and values in a target currency from a
// MarketDataStore.
//
// It only looks at the exact requested date: there is no carry-forward of
// older observations and no FX triangulation through a third currency.
type Resolver struct {
	store  MarketDataStore
	logger *zap.Logger
}

// NewResolver returns a Resolver reading from store.
func NewResolver(store MarketDataStore, opts ...Option) *Resolver {
	o := newOptions(opts)
	return &Resolver{store: store, logger: o.logger}
}

// Price returns the close price of asset on that day, or the quote price of
// the same day when there is no close.
func (r *Resolver) Price(ctx context.Context, asset Asset, on date.Date) (PricePoint, bool, error) {
	id := asset.ID()
	for _, kind := range priceFallback {
		p, ok, err := r.store.Price(ctx, id, on, kind)
		if err != nil {
			return PricePoint{}, false, fmt.Errorf("cannot read %s price of %s on %s: %w", kind, id, on, err)
		}
		if ok {
			return p, true, nil
		}
	}
	return PricePoint{}, false, nil
}

// FxRate returns the rate converting base into quote on that day.
//
// Identical currencies resolve to 1 without reading the store.
func (r *Resolver) FxRate(ctx context.Context, base, quote string, on date.Date) (FxRatePoint, bool, error) {
	if sameCurrency(base, quote) {
		return FxRatePoint{
			Base:     normalizeCode(base),
			Quote:    normalizeCode(quote),
			AsOfDate: on,
			Rate:     "1",
			Kind:     FxClose,
		}, true, nil
	}
	base, quote = normalizeCode(base), normalizeCode(quote)
	p, ok, err := r.store.FxRate(ctx, base, quote, on, FxClose)
	if err != nil {
		return FxRatePoint{}, false, fmt.Errorf("cannot read fx rate %s/%s on %s: %w", base, quote, on, err)
	}
	return p, ok, nil
}

// Valuation is the detailed result of valuing an amount of an asset.
type Valuation struct {
	// Value is the amount in the target currency, meaningful only when Resolved.
	Value    Decimal
	Resolved bool
	// Price is the price used, for non-currency assets.
	Price *PricePoint
	// Fx is the rate used, when a conversion was needed.
	Fx *FxRatePoint
}

// Value values amount of asset in the target currency on a given day.
//
// Price and Fx are filled for every lookup that succeeded, even when a later
// step leaves the value unresolved.
func (r *Resolver) Value(ctx context.Context, asset Asset, amount Decimal, target string, on date.Date) (Valuation, error) {
	var v Valuation
	if asset.Kind == KindCurrency {
		if asset.IsCurrency(target) {
			return Valuation{Value: amount, Resolved: true}, nil
		}
		rate, ok, err := r.FxRate(ctx, asset.ISOCode, target, on)
		if err != nil {
			return v, err
		}
		if !ok {
			r.logger.Debug("unresolved fx rate", zap.String("base", normalizeCode(asset.ISOCode)), zap.String("quote", normalizeCode(target)), zap.Stringer("date", on))
			return v, nil
		}
		rd, err := parseMarketDecimal(rate.Rate, "fx rate %s/%s", rate.Base, rate.Quote)
		if err != nil {
			return v, err
		}
		v.Fx = &rate
		v.Value, v.Resolved = amount.Mul(rd), true
		return v, nil
	}

	price, ok, err := r.Price(ctx, asset, on)
	if err != nil {
		return v, err
	}
	if !ok {
		r.logger.Debug("unresolved price", zap.Stringer("asset", asset.ID()), zap.Stringer("date", on))
		return v, nil
	}
	pd, err := parseMarketDecimal(price.Price, "price of %s", price.AssetID)
	if err != nil {
		return v, err
	}
	v.Price = &price
	quoteValue := amount.Mul(pd)
	if sameCurrency(price.QuoteCurrency, target) {
		v.Value, v.Resolved = quoteValue, true
		return v, nil
	}

	rate, ok, err := r.FxRate(ctx, price.QuoteCurrency, target, on)
	if err != nil {
		return v, err
	}
	if !ok {
		r.logger.Debug("unresolved fx rate", zap.String("base", normalizeCode(price.QuoteCurrency)), zap.String("quote", normalizeCode(target)), zap.Stringer("date", on))
		return v, nil
	}
	rd, err := parseMarketDecimal(rate.Rate, "fx rate %s/%s", rate.Base, rate.Quote)
	if err != nil {
		return v, err
	}
	v.Fx = &rate
	v.Value, v.Resolved = quoteValue.Mul(rd), true
	return v, nil
}

// ValueInCurrency returns the value of amount of asset in the target currency
// on a given day, and false when a price or rate is missing. A missing value
// is no contribution: it is neither zero nor an error.
func (r *Resolver) ValueInCurrency(ctx context.Context, asset Asset, amount Decimal, target string, on date.Date) (Decimal, bool, error) {
	v, err := r.Value(ctx, asset, amount, target, on)
	if err != nil {
		return Decimal{}, false, err
	}
	return v.Value, v.Resolved, nil
}

// parseMarketDecimal parses a stored price or rate, describing it on error.
func parseMarketDecimal(s string, format string, args ...any) (Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("stored %s: %w", fmt.Sprintf(format, args...), err)
	}
	return d, nil
}
