package keepbook

import (
	"fmt"
	"strings"
	"time"
)

// Connection is a link to a financial institution, grouping accounts.
type Connection struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Synchronizer string `json:"synchronizer,omitempty" yaml:"synchronizer,omitempty"`
}

// Account is a single account at a connection.
type Account struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	ConnectionID string    `json:"connection_id" yaml:"connection_id"`
	Tags         []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Active       bool      `json:"active" yaml:"active"`
	CreatedAt    time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// BackfillPolicy decides how an account is valued before its first balance.
type BackfillPolicy string

const (
	// BackfillNone leaves the account out of the valuation.
	BackfillNone BackfillPolicy = "none"
	// BackfillZero counts the account as a zero balance in the reporting currency.
	BackfillZero BackfillPolicy = "zero"
	// BackfillCarryEarliest uses the earliest snapshot even though it is after the date.
	BackfillCarryEarliest BackfillPolicy = "carry_earliest"
)

// ParseBackfillPolicy reads a policy name; the empty string is BackfillNone.
func ParseBackfillPolicy(s string) (BackfillPolicy, error) {
	switch p := BackfillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return BackfillNone, nil
	case BackfillNone, BackfillZero, BackfillCarryEarliest:
		return p, nil
	default:
		return BackfillNone, fmt.Errorf("%w: unknown balance backfill policy %q", ErrInvalidInput, s)
	}
}

// AccountConfig holds per-account valuation settings.
//
// The zero value is the default configuration: no backfill, included in the portfolio.
type AccountConfig struct {
	BalanceBackfill      BackfillPolicy `json:"balance_backfill,omitempty" yaml:"balance_backfill,omitempty"`
	ExcludeFromPortfolio bool           `json:"exclude_from_portfolio,omitempty" yaml:"exclude_from_portfolio,omitempty"`
	// BalanceStaleness overrides how old a balance may get before it is reported as stale.
	BalanceStaleness time.Duration `json:"balance_staleness,omitempty" yaml:"balance_staleness,omitempty"`
}

// Backfill returns the effective backfill policy.
func (c AccountConfig) Backfill() BackfillPolicy {
	if c.BalanceBackfill == "" {
		return BackfillNone
	}
	return c.BalanceBackfill
}

// AssetBalance is the amount of one asset in a balance snapshot.
type AssetBalance struct {
	Asset  Asset  `json:"asset"`
	Amount string `json:"amount"`
}

// BalanceSnapshot is the full list of balances of an account at one instant.
type BalanceSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Balances  []AssetBalance `json:"balances"`
}
