package keepbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// AssetKind names the variant of an Asset.
type AssetKind string

const (
	KindCurrency AssetKind = "currency"
	KindEquity   AssetKind = "equity"
	KindCrypto   AssetKind = "crypto"
)

// Asset is a typed unit of value held in an account.
//
// Only the fields of its Kind are meaningful: ISOCode for a currency, Ticker
// and Exchange for an equity, Symbol and Network for a crypto asset. Strings
// are kept as provided; ID gives the normalized identity used to compare
// assets.
type Asset struct {
	Kind     AssetKind
	ISOCode  string
	Ticker   string
	Exchange string
	Symbol   string
	Network  string
}

// Currency returns a currency asset.
func Currency(isoCode string) Asset { return Asset{Kind: KindCurrency, ISOCode: isoCode} }

// Equity returns an equity asset, exchange is optional.
func Equity(ticker, exchange string) Asset {
	return Asset{Kind: KindEquity, Ticker: ticker, Exchange: exchange}
}

// Crypto returns a crypto asset, network is optional.
func Crypto(symbol, network string) Asset {
	return Asset{Kind: KindCrypto, Symbol: symbol, Network: network}
}

// AssetID is the canonical, path-safe identity of an asset:
//
//	<kind>/<PRIMARY>[/<secondary>]
type AssetID string

func (id AssetID) String() string { return string(id) }

// Normalized returns a copy of a with identity casing applied: currency codes,
// tickers, exchanges and crypto symbols upper-cased, crypto networks
// lower-cased, everything trimmed. Blank optional fields become empty.
func (a Asset) Normalized() Asset {
	switch a.Kind {
	case KindCurrency:
		return Currency(normalizeCode(a.ISOCode))
	case KindEquity:
		return Equity(normalizeCode(a.Ticker), normalizeCode(a.Exchange))
	case KindCrypto:
		return Crypto(normalizeCode(a.Symbol), strings.ToLower(strings.TrimSpace(a.Network)))
	default:
		return a
	}
}

// ID returns the canonical identity of the asset.
func (a Asset) ID() AssetID {
	n := a.Normalized()
	var primary, secondary string
	switch n.Kind {
	case KindCurrency:
		primary = n.ISOCode
	case KindEquity:
		primary, secondary = n.Ticker, n.Exchange
	case KindCrypto:
		primary, secondary = n.Symbol, n.Network
	}
	id := string(n.Kind) + "/" + sanitizeSegment(primary)
	if secondary != "" {
		id += "/" + sanitizeSegment(secondary)
	}
	return AssetID(id)
}

// Same reports whether a and b are the same asset for aggregation purposes.
func (a Asset) Same(b Asset) bool { return a.ID() == b.ID() }

// IsCurrency reports whether a is the currency with the given code, compared
// case-insensitively.
func (a Asset) IsCurrency(code string) bool {
	return a.Kind == KindCurrency && sameCurrency(a.ISOCode, code)
}

func (a Asset) String() string { return string(a.ID()) }

// Validate checks that the asset has a known kind and a primary field.
func (a Asset) Validate() error {
	var primary string
	switch a.Kind {
	case KindCurrency:
		primary = a.ISOCode
	case KindEquity:
		primary = a.Ticker
	case KindCrypto:
		primary = a.Symbol
	default:
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalidInput, a.Kind)
	}
	if strings.TrimSpace(primary) == "" {
		return fmt.Errorf("%w: %s asset without identifier", ErrInvalidInput, a.Kind)
	}
	return nil
}

// ParseAssetID reads back an asset from its identity string, as produced by ID.
func ParseAssetID(s string) (Asset, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
		return Asset{}, fmt.Errorf("%w: invalid asset id %q", ErrInvalidInput, s)
	}
	var secondary string
	if len(parts) == 3 {
		secondary = parts[2]
	}
	var a Asset
	switch AssetKind(parts[0]) {
	case KindCurrency:
		if secondary != "" {
			return Asset{}, fmt.Errorf("%w: invalid currency id %q", ErrInvalidInput, s)
		}
		a = Currency(parts[1])
	case KindEquity:
		a = Equity(parts[1], secondary)
	case KindCrypto:
		a = Crypto(parts[1], secondary)
	default:
		return Asset{}, fmt.Errorf("%w: unknown asset type in %q", ErrInvalidInput, s)
	}
	return a.Normalized(), nil
}

// MarshalJSON writes the asset with its "type" tag first:
//
//	{"type":"equity","ticker":"AAPL","exchange":"XNAS"}
func (a Asset) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("type", a.Kind)
	a.appendFields(&w)
	return w.MarshalJSON()
}

func (a Asset) appendFields(w *jsonObjectWriter) {
	switch a.Kind {
	case KindCurrency:
		w.Append("iso_code", a.ISOCode)
	case KindEquity:
		w.Append("ticker", a.Ticker)
		w.Optional("exchange", strings.TrimSpace(a.Exchange))
	case KindCrypto:
		w.Append("symbol", a.Symbol)
		w.Optional("network", strings.TrimSpace(a.Network))
	}
}

// UnmarshalJSON reads an asset in either key order.
func (a *Asset) UnmarshalJSON(b []byte) error {
	var j struct {
		Type     AssetKind `json:"type"`
		ISOCode  string    `json:"iso_code"`
		Ticker   string    `json:"ticker"`
		Exchange string    `json:"exchange"`
		Symbol   string    `json:"symbol"`
		Network  string    `json:"network"`
	}
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	var v Asset
	switch j.Type {
	case KindCurrency:
		v = Currency(j.ISOCode)
	case KindEquity:
		v = Equity(j.Ticker, j.Exchange)
	case KindCrypto:
		v = Crypto(j.Symbol, j.Network)
	default:
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalidInput, j.Type)
	}
	*a = v
	return nil
}

// payloadFirstAsset writes the asset fields before the "type" tag:
//
//	{"iso_code":"USD","type":"currency"}
//
// This is the ordering used inside snapshot reports.
type payloadFirstAsset Asset

func (a payloadFirstAsset) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	Asset(a).appendFields(&w)
	w.Append("type", a.Kind)
	return w.MarshalJSON()
}

// normalizeCode trims and upper-cases an identifier.
func normalizeCode(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// sameCurrency compares two currency codes ignoring case and surrounding spaces.
func sameCurrency(a, b string) bool { return normalizeCode(a) == normalizeCode(b) }

// sanitizeSegment makes s usable as a single path segment: separators and
// control characters become '-', and empty, "." or ".." become "_".
func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '-'
		}
		return r
	}, s)
	switch s {
	case "", ".", "..":
		return "_"
	}
	return s
}
