package renderer

import (
	"cmp"
	"slices"
	"time"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
)

// DefaultStaleness is how old an account balance may get before it is
// flagged, unless configured otherwise.
const DefaultStaleness = 14 * 24 * time.Hour

// Staleness holds the balance age limits.
type Staleness struct {
	// Default applies to accounts without their own limit; zero means DefaultStaleness.
	Default time.Duration
	// Accounts maps account ids to their own limit.
	Accounts map[string]time.Duration
}

func (s Staleness) limit(accountID string) time.Duration {
	if d, ok := s.Accounts[accountID]; ok && d > 0 {
		return d
	}
	if s.Default > 0 {
		return s.Default
	}
	return DefaultStaleness
}

// Snapshot is the view of a portfolio snapshot used by the markdown templates.
type Snapshot struct {
	Date     date.Date
	Currency string
	Total    Money
	Assets   []SnapshotAsset
	Accounts []SnapshotAccount
}

// SnapshotAsset is one line of the asset table.
type SnapshotAsset struct {
	Name   string
	Amount string
	Price  string
	FxRate string
	// Value is "n/a" when the asset could not be valued.
	Value string
}

// SnapshotAccount is one line of the account table.
type SnapshotAccount struct {
	Name        string
	Connection  string
	Value       string
	BalanceDate string
	Stale       bool
}

// NewSnapshot builds the view of s.
//
// Balance dates, and therefore stale flags, are only known for accounts that
// appear in the asset detail of s.
func NewSnapshot(s *keepbook.PortfolioSnapshot, staleness Staleness) *Snapshot {
	v := &Snapshot{
		Date:     s.AsOfDate,
		Currency: s.Currency,
		Total:    M(s.TotalValue, s.Currency),
	}

	latest := make(map[string]date.Date)
	for _, a := range s.ByAsset {
		line := SnapshotAsset{
			Name:   a.Asset.ID().String(),
			Amount: a.TotalAmount.String(),
			Value:  "n/a",
		}
		if a.Price != nil {
			line.Price = a.Price.String()
		}
		if a.FxRate != nil {
			line.FxRate = a.FxRate.String()
		}
		if a.ValueInBase != nil {
			line.Value = M(*a.ValueInBase, s.Currency).String()
		}
		v.Assets = append(v.Assets, line)
		for _, h := range a.Holdings {
			if d, ok := latest[h.AccountID]; !ok || h.BalanceDate.After(d) {
				latest[h.AccountID] = h.BalanceDate
			}
		}
	}

	for _, a := range s.ByAccount {
		line := SnapshotAccount{
			Name:       a.AccountName,
			Connection: a.ConnectionName,
			Value:      "n/a",
		}
		if a.ValueInBase != nil {
			line.Value = M(*a.ValueInBase, s.Currency).String()
		}
		if d, ok := latest[a.AccountID]; ok {
			line.BalanceDate = d.String()
			line.Stale = s.AsOfDate.Start().Sub(d.Start()) > staleness.limit(a.AccountID)
		}
		v.Accounts = append(v.Accounts, line)
	}
	return v
}

// StaleAccounts returns the names of the stale accounts, sorted.
func (s *Snapshot) StaleAccounts() []string {
	var names []string
	for _, a := range s.Accounts {
		if a.Stale {
			names = append(names, a.Name)
		}
	}
	slices.SortFunc(names, cmp.Compare[string])
	return names
}
