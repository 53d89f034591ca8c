package keepbook

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/etnz/keepbook/date"
	"go.uber.org/zap"
)

// Grouping selects the breakdowns included in a portfolio snapshot.
type Grouping string

const (
	GroupByAsset   Grouping = "asset"
	GroupByAccount Grouping = "account"
	GroupByBoth    Grouping = "both"
)

// ParseGrouping reads a grouping name. Unknown names fall back to GroupByBoth.
func ParseGrouping(s string) Grouping {
	switch g := Grouping(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupByAsset, GroupByAccount, GroupByBoth:
		return g
	default:
		return GroupByBoth
	}
}

func (g Grouping) byAsset() bool   { return g != GroupByAccount }
func (g Grouping) byAccount() bool { return g != GroupByAsset }

// SnapshotQuery describes a portfolio valuation request.
type SnapshotQuery struct {
	AsOf          date.Date
	Currency      string
	GroupBy       Grouping
	IncludeDetail bool
	// Accounts restricts the valuation to these account ids. Empty means all.
	Accounts []string
}

// PortfolioSnapshot is the value of the portfolio on one day.
type PortfolioSnapshot struct {
	AsOfDate   date.Date
	Currency   string
	TotalValue Decimal
	// ByAsset is nil when not requested.
	ByAsset []AssetSummary
	// ByAccount is nil when not requested.
	ByAccount []AccountSummary
}

// AssetSummary is the aggregated holding of one asset across accounts.
type AssetSummary struct {
	Asset       Asset
	TotalAmount Decimal
	// AmountDate is the date of the most recent balance contributing to TotalAmount.
	AmountDate     date.Date
	Price          *Decimal
	PriceDate      *date.Date
	PriceTimestamp *time.Time
	FxRate         *Decimal
	FxDate         *date.Date
	ValueInBase    *Decimal
	// Holdings is nil unless detail was requested.
	Holdings []AccountHolding
}

// AccountHolding is the share of one account in an AssetSummary.
type AccountHolding struct {
	AccountID   string
	AccountName string
	Amount      Decimal
	BalanceDate date.Date
}

// AccountSummary is the value of one account.
type AccountSummary struct {
	AccountID      string
	AccountName    string
	ConnectionName string
	// ValueInBase sums the holdings of the account that could be valued; it is
	// nil when none could.
	ValueInBase *Decimal
}

// Valuer computes portfolio snapshots from storage and market data.
type Valuer struct {
	storage  Storage
	resolver *Resolver
	logger   *zap.Logger
}

// NewValuer returns a Valuer reading balances from storage and prices from market.
func NewValuer(storage Storage, market MarketDataStore, opts ...Option) *Valuer {
	o := newOptions(opts)
	return &Valuer{
		storage:  storage,
		resolver: NewResolver(market, opts...),
		logger:   o.logger,
	}
}

// holding is an account balance for one asset, amounts already merged.
type holding struct {
	account Account
	asset   Asset
	amount  Decimal
	on      date.Date
}

// accountHoldings groups the holdings of one included account.
type accountHoldings struct {
	account    Account
	connection string
	holdings   []holding
}

// Snapshot values the portfolio as of q.AsOf in q.Currency.
func (v *Valuer) Snapshot(ctx context.Context, q SnapshotQuery) (*PortfolioSnapshot, error) {
	if strings.TrimSpace(q.Currency) == "" {
		return nil, fmt.Errorf("%w: missing reporting currency", ErrInvalidInput)
	}
	if q.AsOf.IsZero() {
		return nil, fmt.Errorf("%w: missing valuation date", ErrInvalidInput)
	}
	target := normalizeCode(q.Currency)
	group := q.GroupBy
	if group == "" {
		group = GroupByBoth
	}
	group = ParseGrouping(string(group))

	accounts, err := v.holdings(ctx, q.AsOf, target, q.Accounts)
	if err != nil {
		return nil, err
	}

	snap := &PortfolioSnapshot{AsOfDate: q.AsOf, Currency: target}

	// Aggregate by asset identity; the total is computed from the aggregate
	// whatever the grouping.
	type aggregate struct {
		summary AssetSummary
		members []holding
	}
	byID := make(map[AssetID]*aggregate)
	for _, a := range accounts {
		for _, h := range a.holdings {
			id := h.asset.ID()
			agg, ok := byID[id]
			if !ok {
				agg = &aggregate{summary: AssetSummary{Asset: h.asset.Normalized(), AmountDate: h.on}}
				byID[id] = agg
			}
			agg.summary.TotalAmount = agg.summary.TotalAmount.Add(h.amount)
			if h.on.After(agg.summary.AmountDate) {
				agg.summary.AmountDate = h.on
			}
			agg.members = append(agg.members, h)
		}
	}
	ids := make([]AssetID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var total Decimal
	summaries := make([]AssetSummary, 0, len(ids))
	for _, id := range ids {
		agg := byID[id]
		s := agg.summary
		val, err := v.resolver.Value(ctx, s.Asset, s.TotalAmount, target, q.AsOf)
		if err != nil {
			return nil, err
		}
		s.setValuation(val)
		if val.Resolved {
			total = total.Add(val.Value)
		}
		if q.IncludeDetail {
			s.Holdings = holdingsOf(agg.members)
		}
		summaries = append(summaries, s)
	}
	snap.TotalValue = total

	if group.byAsset() {
		snap.ByAsset = summaries
	}
	if group.byAccount() {
		snap.ByAccount, err = v.accountSummaries(ctx, accounts, target, q.AsOf)
		if err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// TotalValue returns only the total value of the portfolio, restricted to the
// given accounts when any.
func (v *Valuer) TotalValue(ctx context.Context, on date.Date, currency string, accounts []string) (Decimal, error) {
	snap, err := v.Snapshot(ctx, SnapshotQuery{AsOf: on, Currency: currency, GroupBy: GroupByAsset, Accounts: accounts})
	if err != nil {
		return Decimal{}, err
	}
	return snap.TotalValue, nil
}

// setValuation copies the lookups and the value into s.
func (s *AssetSummary) setValuation(val Valuation) {
	if val.Price != nil {
		// Already validated by the resolver.
		price, _ := ParseDecimal(val.Price.Price)
		priceDate, ts := val.Price.AsOfDate, val.Price.Timestamp
		s.Price, s.PriceDate, s.PriceTimestamp = &price, &priceDate, &ts
	}
	if val.Fx != nil {
		rate, _ := ParseDecimal(val.Fx.Rate)
		fxDate := val.Fx.AsOfDate
		s.FxRate, s.FxDate = &rate, &fxDate
	}
	if val.Resolved {
		value := val.Value
		s.ValueInBase = &value
	}
}

// holdingsOf returns the per-account detail of an asset, sorted by account name.
func holdingsOf(members []holding) []AccountHolding {
	out := make([]AccountHolding, 0, len(members))
	for _, h := range members {
		out = append(out, AccountHolding{
			AccountID:   h.account.ID,
			AccountName: h.account.Name,
			Amount:      h.amount,
			BalanceDate: h.on,
		})
	}
	slices.SortStableFunc(out, func(a, b AccountHolding) int {
		return cmp.Or(cmp.Compare(a.AccountName, b.AccountName), cmp.Compare(a.AccountID, b.AccountID))
	})
	return out
}

// accountSummaries values every included account on its own.
func (v *Valuer) accountSummaries(ctx context.Context, accounts []accountHoldings, target string, on date.Date) ([]AccountSummary, error) {
	out := make([]AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		s := AccountSummary{
			AccountID:      a.account.ID,
			AccountName:    a.account.Name,
			ConnectionName: a.connection,
		}
		var sum Decimal
		var resolved bool
		for _, h := range a.holdings {
			val, err := v.resolver.Value(ctx, h.asset, h.amount, target, on)
			if err != nil {
				return nil, err
			}
			if val.Resolved {
				sum, resolved = sum.Add(val.Value), true
			}
		}
		if resolved {
			s.ValueInBase = &sum
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b AccountSummary) int {
		return cmp.Or(cmp.Compare(a.AccountName, b.AccountName), cmp.Compare(a.AccountID, b.AccountID))
	})
	return out, nil
}

// holdings loads the effective balances of every included account.
func (v *Valuer) holdings(ctx context.Context, on date.Date, target string, filter []string) ([]accountHoldings, error) {
	accounts, err := v.storage.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list accounts: %w", err)
	}
	accounts, err = selectAccounts(accounts, filter)
	if err != nil {
		return nil, err
	}
	connections, err := v.storage.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list connections: %w", err)
	}
	connectionNames := make(map[string]string, len(connections))
	for _, c := range connections {
		connectionNames[c.ID] = c.Name
	}

	out := make([]accountHoldings, 0, len(accounts))
	for _, account := range accounts {
		cfg, _, err := v.storage.GetAccountConfig(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot read config of account %q: %w", account.ID, err)
		}
		if cfg.ExcludeFromPortfolio {
			continue
		}
		snapshots, err := v.storage.GetBalanceSnapshots(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot read balances of account %q: %w", account.ID, err)
		}
		balances, balanceDate, ok := effectiveBalances(snapshots, on, target, cfg.Backfill())
		if !ok {
			v.logger.Debug("account has no balance", zap.String("account", account.ID), zap.Stringer("date", on))
		} else if balanceDate.After(on) || len(snapshots) == 0 {
			v.logger.Debug("balance backfilled", zap.String("account", account.ID), zap.String("policy", string(cfg.Backfill())), zap.Stringer("date", on))
		}
		a := accountHoldings{account: account, connection: connectionNames[account.ConnectionID]}
		a.holdings, err = mergeBalances(account, balances, balanceDate)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// selectAccounts keeps the accounts listed in filter, all of them when filter
// is empty. Every requested id must exist.
func selectAccounts(accounts []Account, filter []string) ([]Account, error) {
	if len(filter) == 0 {
		return accounts, nil
	}
	known := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		known[a.ID] = true
	}
	wanted := make(map[string]bool, len(filter))
	for _, id := range filter {
		if !known[id] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
		}
		wanted[id] = true
	}
	selected := make([]Account, 0, len(filter))
	for _, a := range accounts {
		if wanted[a.ID] {
			selected = append(selected, a)
		}
	}
	return selected, nil
}

// effectiveBalances picks the balances valid on a day: the latest snapshot at
// or before the end of that day, or else whatever the backfill policy gives.
// It returns false when the account contributes nothing.
func effectiveBalances(snapshots []BalanceSnapshot, on date.Date, target string, policy BackfillPolicy) ([]AssetBalance, date.Date, bool) {
	cutoff := on.EndOfDay()
	latest, earliest := -1, -1
	for i, s := range snapshots {
		if !s.Timestamp.After(cutoff) && (latest < 0 || !s.Timestamp.Before(snapshots[latest].Timestamp)) {
			latest = i
		}
		if earliest < 0 || s.Timestamp.Before(snapshots[earliest].Timestamp) {
			earliest = i
		}
	}
	if latest >= 0 {
		s := snapshots[latest]
		return s.Balances, date.Of(s.Timestamp), true
	}
	switch policy {
	case BackfillZero:
		return []AssetBalance{{Asset: Currency(target), Amount: "0"}}, on, true
	case BackfillCarryEarliest:
		if earliest >= 0 {
			s := snapshots[earliest]
			return s.Balances, date.Of(s.Timestamp), true
		}
	}
	return nil, date.Date{}, false
}

// mergeBalances parses the balances of one snapshot and merges the ones that
// share an asset identity.
func mergeBalances(account Account, balances []AssetBalance, on date.Date) ([]holding, error) {
	out := make([]holding, 0, len(balances))
	index := make(map[AssetID]int, len(balances))
	for _, b := range balances {
		amount, err := ParseDecimal(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("account %q balance of %s: %w", account.ID, b.Asset.ID(), err)
		}
		id := b.Asset.ID()
		if i, ok := index[id]; ok {
			out[i].amount = out[i].amount.Add(amount)
			continue
		}
		index[id] = len(out)
		out = append(out, holding{account: account, asset: b.Asset.Normalized(), amount: amount, on: on})
	}
	return out, nil
}

// MarshalJSON writes the snapshot with its fixed key order.
func (s PortfolioSnapshot) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("as_of_date", s.AsOfDate)
	w.Append("currency", s.Currency)
	w.Append("total_value", s.TotalValue)
	w.Optional("by_asset", s.ByAsset)
	w.Optional("by_account", s.ByAccount)
	return w.MarshalJSON()
}

func (s AssetSummary) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("asset", payloadFirstAsset(s.Asset))
	w.Append("total_amount", s.TotalAmount)
	w.Append("amount_date", s.AmountDate)
	w.Optional("price", s.Price)
	w.Optional("price_date", s.PriceDate)
	if s.PriceTimestamp != nil {
		w.Append("price_timestamp", FormatTimestamp(*s.PriceTimestamp, TimestampAuto))
	}
	w.Optional("fx_rate", s.FxRate)
	w.Optional("fx_date", s.FxDate)
	w.Optional("value_in_base", s.ValueInBase)
	w.Optional("holdings", s.Holdings)
	return w.MarshalJSON()
}

func (h AccountHolding) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account_id", h.AccountID)
	w.Append("account_name", h.AccountName)
	w.Append("amount", h.Amount)
	w.Append("balance_date", h.BalanceDate)
	return w.MarshalJSON()
}

func (s AccountSummary) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account_id", s.AccountID)
	w.Append("account_name", s.AccountName)
	w.Append("connection_name", s.ConnectionName)
	w.Optional("value_in_base", s.ValueInBase)
	return w.MarshalJSON()
}
