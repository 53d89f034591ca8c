// Package keepbook values personal financial accounts and tracks how that
// value changes over time. It is local-first and exact: every amount, price
// and rate is a Decimal, never a float, and every output is reproducible for
// identical data.
//
// The core functionalities include:
//   - Asset Identity: currencies, equities and crypto assets, compared through
//     a canonical, path-safe AssetID.
//   - Market Data Resolution: same-day prices (close, then quote) and direct
//     FX rates read from a MarketDataStore.
//   - Valuation: a PortfolioSnapshot of every account on a given day, in a
//     reporting currency, by asset and by account.
//   - Change History: the instants at which balances, prices or rates changed,
//     downsampled by Granularity, and the portfolio value at each of them.
//
// Balances and market data are read through the Storage and MarketDataStore
// interfaces; the store package provides file and in-memory implementations,
// and this package never writes through them.
//
// This package serves as the foundational logic for the `kb` command-line
// tool.
package keepbook
