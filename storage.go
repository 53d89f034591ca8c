package keepbook

import (
	"context"

	"github.com/etnz/keepbook/date"
)

// Storage gives read access to connections, accounts and their balances.
//
// The engine never writes through it. Implementations own their I/O, retries
// included; errors are returned to the caller unchanged.
type Storage interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	// GetAccountConfig returns the account configuration, and false when the
	// account has none (the default configuration then applies).
	GetAccountConfig(ctx context.Context, accountID string) (AccountConfig, bool, error)
	ListConnections(ctx context.Context) ([]Connection, error)
	// GetBalanceSnapshots returns the snapshots of an account in append order.
	GetBalanceSnapshots(ctx context.Context, accountID string) ([]BalanceSnapshot, error)
}

// MarketDataStore gives access to stored prices and FX rates.
//
// Point lookups return false when no observation exists; that is not an error.
type MarketDataStore interface {
	Price(ctx context.Context, id AssetID, on date.Date, kind PriceKind) (PricePoint, bool, error)
	AllPrices(ctx context.Context, id AssetID) ([]PricePoint, error)
	FxRate(ctx context.Context, base, quote string, on date.Date, kind FxRateKind) (FxRatePoint, bool, error)
	AllFxRates(ctx context.Context, base, quote string) ([]FxRatePoint, error)
}
