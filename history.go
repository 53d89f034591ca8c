package keepbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/keepbook/date"
	"go.uber.org/zap"
)

// ChangePointsQuery describes a change point listing.
type ChangePointsQuery struct {
	Start, End    *date.Date
	Granularity   Granularity
	Strategy      Strategy
	Accounts      []string
	IncludePrices bool
	IncludeFx     bool
	// Currency is the target of FX tracking, used only with IncludeFx.
	Currency string
}

// HistoryQuery describes a portfolio value history.
type HistoryQuery struct {
	Currency      string
	Start, End    *date.Date
	Granularity   Granularity
	Strategy      Strategy
	Accounts      []string
	IncludePrices bool
	IncludeFx     bool
}

func (q HistoryQuery) changePoints() ChangePointsQuery {
	return ChangePointsQuery{
		Start:         q.Start,
		End:           q.End,
		Granularity:   q.Granularity,
		Strategy:      q.Strategy,
		Accounts:      q.Accounts,
		IncludePrices: q.IncludePrices,
		IncludeFx:     q.IncludeFx,
		Currency:      q.Currency,
	}
}

// ChangePoints is the filtered list of change points.
type ChangePoints struct {
	Start, End    *date.Date
	Granularity   Granularity
	IncludePrices bool
	Points        []ChangePoint
}

// History is the value of the portfolio at every surviving change point.
type History struct {
	Currency    string
	Start, End  *date.Date
	Granularity Granularity
	Points      []HistoryPoint
	// Summary is nil with fewer than two points.
	Summary *HistorySummary
}

// HistoryPoint is the portfolio value at one change point.
type HistoryPoint struct {
	Timestamp      time.Time
	Date           date.Date
	TotalValue     Decimal
	ChangeTriggers []string
}

// HistorySummary compares the first and the last point of a history.
type HistorySummary struct {
	InitialValue   Decimal
	FinalValue     Decimal
	AbsoluteChange Decimal
	// PercentageChange has two fractional digits, or is "N/A" when the
	// initial value is zero.
	PercentageChange string
}

// NewHistorySummary compares initial and final values.
func NewHistorySummary(initial, final Decimal) HistorySummary {
	change := final.Sub(initial)
	percent := "N/A"
	if !initial.IsZero() {
		percent = change.Mul(DecimalFromInt(100)).DivRound(initial, 2).StringFixed(2)
	}
	return HistorySummary{
		InitialValue:     initial,
		FinalValue:       final,
		AbsoluteChange:   change,
		PercentageChange: percent,
	}
}

// Historian builds change point listings and value histories.
type Historian struct {
	storage Storage
	market  MarketDataStore
	opts    []Option
	logger  *zap.Logger
}

// NewHistorian returns a Historian over storage and market.
func NewHistorian(storage Storage, market MarketDataStore, opts ...Option) *Historian {
	return &Historian{
		storage: storage,
		market:  market,
		opts:    opts,
		logger:  newOptions(opts).logger,
	}
}

func checkRange(start, end *date.Date) error {
	if start != nil && end != nil && start.After(*end) {
		return fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidInput, start, end)
	}
	return nil
}

// ChangePoints collects the change points, then filters them by date range and
// by granularity.
func (h *Historian) ChangePoints(ctx context.Context, q ChangePointsQuery) (*ChangePoints, error) {
	return h.changePoints(ctx, h.storage, q)
}

func (h *Historian) changePoints(ctx context.Context, storage Storage, q ChangePointsQuery) (*ChangePoints, error) {
	if err := checkRange(q.Start, q.End); err != nil {
		return nil, err
	}
	strategy := q.Strategy
	if strategy == "" {
		strategy = StrategyLast
	}
	points, err := CollectChangePoints(ctx, storage, h.market, CollectOptions{
		Accounts:      q.Accounts,
		IncludePrices: q.IncludePrices,
		IncludeFx:     q.IncludeFx,
		Currency:      q.Currency,
	}, h.opts...)
	if err != nil {
		return nil, err
	}
	collected := len(points)
	points = FilterByDateRange(points, q.Start, q.End)
	points = FilterByGranularity(points, q.Granularity, strategy)
	h.logger.Debug("change points filtered", zap.Int("collected", collected), zap.Int("kept", len(points)), zap.Stringer("granularity", q.Granularity))
	if points == nil {
		points = []ChangePoint{}
	}
	return &ChangePoints{
		Start:         q.Start,
		End:           q.End,
		Granularity:   q.Granularity,
		IncludePrices: q.IncludePrices,
		Points:        points,
	}, nil
}

// History values the portfolio at every change point that survives the
// filters, and summarizes the evolution.
func (h *Historian) History(ctx context.Context, q HistoryQuery) (*History, error) {
	if strings.TrimSpace(q.Currency) == "" {
		return nil, fmt.Errorf("%w: missing reporting currency", ErrInvalidInput)
	}
	storage := newCachedStorage(h.storage)
	cps, err := h.changePoints(ctx, storage, q.changePoints())
	if err != nil {
		return nil, err
	}
	valuer := NewValuer(storage, h.market, h.opts...)

	hist := &History{
		Currency:    normalizeCode(q.Currency),
		Start:       q.Start,
		End:         q.End,
		Granularity: q.Granularity,
		Points:      make([]HistoryPoint, 0, len(cps.Points)),
	}
	for _, p := range cps.Points {
		on := p.Date()
		total, err := valuer.TotalValue(ctx, on, q.Currency, q.Accounts)
		if err != nil {
			return nil, fmt.Errorf("cannot value portfolio on %s: %w", on, err)
		}
		hist.Points = append(hist.Points, HistoryPoint{
			Timestamp:      p.Timestamp,
			Date:           on,
			TotalValue:     total,
			ChangeTriggers: p.CompactTriggers(),
		})
	}
	if n := len(hist.Points); n >= 2 {
		s := NewHistorySummary(hist.Points[0].TotalValue, hist.Points[n-1].TotalValue)
		hist.Summary = &s
	}
	return hist, nil
}

func (c ChangePoints) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Nullable("start_date", c.Start)
	w.Nullable("end_date", c.End)
	w.Append("granularity", c.Granularity)
	w.Append("include_prices", c.IncludePrices)
	w.Append("points", nonNil(c.Points))
	return w.MarshalJSON()
}

func (h History) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("currency", h.Currency)
	w.Nullable("start_date", h.Start)
	w.Nullable("end_date", h.End)
	w.Append("granularity", h.Granularity)
	w.Append("points", nonNil(h.Points))
	w.Optional("summary", h.Summary)
	return w.MarshalJSON()
}

func (p HistoryPoint) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("timestamp", FormatTimestamp(p.Timestamp, TimestampAuto))
	w.Append("date", p.Date)
	w.Append("total_value", p.TotalValue)
	if len(p.ChangeTriggers) > 0 {
		w.Append("change_triggers", p.ChangeTriggers)
	}
	return w.MarshalJSON()
}

func (s HistorySummary) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("initial_value", s.InitialValue)
	w.Append("final_value", s.FinalValue)
	w.Append("absolute_change", s.AbsoluteChange)
	w.Append("percentage_change", s.PercentageChange)
	return w.MarshalJSON()
}

// nonNil returns an empty slice for nil so that it is written as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// cachedStorage reads every account, config and balance list at most once.
// It lives for a single request.
type cachedStorage struct {
	Storage
	accounts    []Account
	connections []Connection
	configs     map[string]cachedConfig
	snapshots   map[string][]BalanceSnapshot
}

type cachedConfig struct {
	config AccountConfig
	ok     bool
}

func newCachedStorage(s Storage) *cachedStorage {
	return &cachedStorage{
		Storage:   s,
		configs:   make(map[string]cachedConfig),
		snapshots: make(map[string][]BalanceSnapshot),
	}
}

func (c *cachedStorage) ListAccounts(ctx context.Context) ([]Account, error) {
	if c.accounts == nil {
		accounts, err := c.Storage.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		c.accounts = nonNil(accounts)
	}
	return c.accounts, nil
}

func (c *cachedStorage) ListConnections(ctx context.Context) ([]Connection, error) {
	if c.connections == nil {
		connections, err := c.Storage.ListConnections(ctx)
		if err != nil {
			return nil, err
		}
		c.connections = nonNil(connections)
	}
	return c.connections, nil
}

func (c *cachedStorage) GetAccountConfig(ctx context.Context, accountID string) (AccountConfig, bool, error) {
	if cfg, ok := c.configs[accountID]; ok {
		return cfg.config, cfg.ok, nil
	}
	cfg, ok, err := c.Storage.GetAccountConfig(ctx, accountID)
	if err != nil {
		return AccountConfig{}, false, err
	}
	c.configs[accountID] = cachedConfig{config: cfg, ok: ok}
	return cfg, ok, nil
}

func (c *cachedStorage) GetBalanceSnapshots(ctx context.Context, accountID string) ([]BalanceSnapshot, error) {
	if s, ok := c.snapshots[accountID]; ok {
		return s, nil
	}
	s, err := c.Storage.GetBalanceSnapshots(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.snapshots[accountID] = s
	return s, nil
}
