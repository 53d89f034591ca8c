// Package sqlstore implements the keepbook Storage and MarketDataStore
// interfaces on a SQL database through gorm, SQLite by default.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"github.com/etnz/keepbook/store"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is a database-backed Storage and MarketDataStore.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens, creating it if needed, the SQLite database at path and migrates
// its schema. Use ":memory:" for a private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	s, err := New(db, logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("database opened", zap.String("path", path))
	return s, nil
}

// New returns a Store on an open database, migrating its schema.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// AddConnection inserts a connection.
func (s *Store) AddConnection(ctx context.Context, c keepbook.Connection) error {
	row := connectionRow{ID: c.ID, Name: c.Name, Synchronizer: c.Synchronizer}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create connection %q: %w", c.ID, err)
	}
	return nil
}

// AddAccount inserts an account. A nil cfg is the default configuration.
func (s *Store) AddAccount(ctx context.Context, a keepbook.Account, cfg *keepbook.AccountConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		if err := tx.Model(&accountRow{}).Count(&seq).Error; err != nil {
			return fmt.Errorf("failed to count accounts: %w", err)
		}
		row := newAccountRow(a, cfg, seq)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create account %q: %w", a.ID, err)
		}
		return nil
	})
}

// AppendBalance appends a snapshot to an account.
func (s *Store) AppendBalance(ctx context.Context, accountID string, snap keepbook.BalanceSnapshot) error {
	row := snapshotRow{AccountID: accountID, Timestamp: snap.Timestamp.UTC()}
	for i, b := range snap.Balances {
		if _, err := keepbook.ParseDecimal(b.Amount); err != nil {
			return fmt.Errorf("account %q: %w", accountID, err)
		}
		asset, err := json.Marshal(b.Asset)
		if err != nil {
			return fmt.Errorf("account %q: %w", accountID, err)
		}
		row.Balances = append(row.Balances, balanceRow{
			Position: i,
			AssetID:  string(b.Asset.ID()),
			Asset:    string(asset),
			Amount:   b.Amount,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&accountRow{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to find account %q: %w", accountID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", keepbook.ErrUnknownAccount, accountID)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to append balance of %q: %w", accountID, err)
		}
		return nil
	})
}

// AddPrice inserts or replaces the price of an asset for a day and kind.
func (s *Store) AddPrice(ctx context.Context, p keepbook.PricePoint) error {
	if _, err := keepbook.ParseDecimal(p.Price); err != nil {
		return fmt.Errorf("price of %s on %s: %w", p.AssetID, p.AsOfDate, err)
	}
	asset, err := keepbook.ParseAssetID(string(p.AssetID))
	if err != nil {
		return err
	}
	row := priceRow{
		AssetID:       string(asset.ID()),
		AsOfDate:      p.AsOfDate.String(),
		Kind:          string(p.Kind),
		Timestamp:     p.Timestamp.UTC(),
		Price:         p.Price,
		QuoteCurrency: normalizeCode(p.QuoteCurrency),
		Source:        p.Source,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "as_of_date"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "price", "quote_currency", "source"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store price of %s: %w", row.AssetID, err)
	}
	return nil
}

// AddFxRate inserts or replaces the rate of a pair for a day and kind.
func (s *Store) AddFxRate(ctx context.Context, r keepbook.FxRatePoint) error {
	if _, err := keepbook.ParseDecimal(r.Rate); err != nil {
		return fmt.Errorf("fx rate %s/%s on %s: %w", r.Base, r.Quote, r.AsOfDate, err)
	}
	row := fxRateRow{
		Base:      normalizeCode(r.Base),
		Quote:     normalizeCode(r.Quote),
		AsOfDate:  r.AsOfDate.String(),
		Kind:      string(r.Kind),
		Timestamp: r.Timestamp.UTC(),
		Rate:      r.Rate,
		Source:    r.Source,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "base"}, {Name: "quote"}, {Name: "as_of_date"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "rate", "source"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store fx rate %s/%s: %w", row.Base, row.Quote, err)
	}
	return nil
}

// Import copies every connection, account, balance and market data
// observation of a file-backed store, in a single transaction.
func (s *Store) Import(ctx context.Context, m *store.Memory) error {
	connections, _ := m.ListConnections(ctx)
	accounts, _ := m.ListAccounts(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := &Store{db: tx, logger: s.logger}
		for _, c := range connections {
			if err := txs.AddConnection(ctx, c); err != nil {
				return err
			}
		}
		for _, a := range accounts {
			var cfg *keepbook.AccountConfig
			if c, ok, _ := m.GetAccountConfig(ctx, a.ID); ok {
				cfg = &c
			}
			if err := txs.AddAccount(ctx, a, cfg); err != nil {
				return err
			}
			snapshots, _ := m.GetBalanceSnapshots(ctx, a.ID)
			for _, snap := range snapshots {
				if err := txs.AppendBalance(ctx, a.ID, snap); err != nil {
					return err
				}
			}
		}
		for _, id := range m.AssetIDs() {
			prices, _ := m.AllPrices(ctx, id)
			for _, p := range prices {
				if err := txs.AddPrice(ctx, p); err != nil {
					return err
				}
			}
		}
		for _, pair := range m.Pairs() {
			rates, _ := m.AllFxRates(ctx, pair.Base, pair.Quote)
			for _, r := range rates {
				if err := txs.AddFxRate(ctx, r); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("data imported", zap.Int("connections", len(connections)), zap.Int("accounts", len(accounts)))
	return nil
}

// Storage

func (s *Store) ListAccounts(ctx context.Context) ([]keepbook.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("seq").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	accounts := make([]keepbook.Account, len(rows))
	for i, r := range rows {
		accounts[i] = r.account()
	}
	return accounts, nil
}

func (s *Store) GetAccountConfig(ctx context.Context, accountID string) (keepbook.AccountConfig, bool, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return keepbook.AccountConfig{}, false, nil
	}
	if err != nil {
		return keepbook.AccountConfig{}, false, fmt.Errorf("failed to read account %q: %w", accountID, err)
	}
	if !row.HasConfig {
		return keepbook.AccountConfig{}, false, nil
	}
	return row.config(), true, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]keepbook.Connection, error) {
	var rows []connectionRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	connections := make([]keepbook.Connection, len(rows))
	for i, r := range rows {
		connections[i] = keepbook.Connection{ID: r.ID, Name: r.Name, Synchronizer: r.Synchronizer}
	}
	return connections, nil
}

func (s *Store) GetBalanceSnapshots(ctx context.Context, accountID string) ([]keepbook.BalanceSnapshot, error) {
	var rows []snapshotRow
	err := s.db.WithContext(ctx).
		Preload("Balances", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("account_id = ?", accountID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read balances of %q: %w", accountID, err)
	}
	snapshots := make([]keepbook.BalanceSnapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.snapshot()
		if err != nil {
			return nil, fmt.Errorf("corrupted balance of %q: %w", accountID, err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// MarketDataStore

func (r priceRow) point() keepbook.PricePoint {
	on, _ := date.Parse(r.AsOfDate)
	return keepbook.PricePoint{
		AssetID:       keepbook.AssetID(r.AssetID),
		AsOfDate:      on,
		Timestamp:     r.Timestamp.UTC(),
		Price:         r.Price,
		QuoteCurrency: r.QuoteCurrency,
		Kind:          keepbook.PriceKind(r.Kind),
		Source:        r.Source,
	}
}

func (r fxRateRow) point() keepbook.FxRatePoint {
	on, _ := date.Parse(r.AsOfDate)
	return keepbook.FxRatePoint{
		Base:      r.Base,
		Quote:     r.Quote,
		AsOfDate:  on,
		Timestamp: r.Timestamp.UTC(),
		Rate:      r.Rate,
		Kind:      keepbook.FxRateKind(r.Kind),
		Source:    r.Source,
	}
}

func (s *Store) Price(ctx context.Context, id keepbook.AssetID, on date.Date, kind keepbook.PriceKind) (keepbook.PricePoint, bool, error) {
	var row priceRow
	err := s.db.WithContext(ctx).
		Where("asset_id = ? AND as_of_date = ? AND kind = ?", string(id), on.String(), string(kind)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return keepbook.PricePoint{}, false, nil
	}
	if err != nil {
		return keepbook.PricePoint{}, false, fmt.Errorf("failed to read price of %s: %w", id, err)
	}
	return row.point(), true, nil
}

func (s *Store) AllPrices(ctx context.Context, id keepbook.AssetID) ([]keepbook.PricePoint, error) {
	var rows []priceRow
	if err := s.db.WithContext(ctx).Where("asset_id = ?", string(id)).Order("as_of_date").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read prices of %s: %w", id, err)
	}
	out := make([]keepbook.PricePoint, len(rows))
	for i, r := range rows {
		out[i] = r.point()
	}
	return out, nil
}

func (s *Store) FxRate(ctx context.Context, base, quote string, on date.Date, kind keepbook.FxRateKind) (keepbook.FxRatePoint, bool, error) {
	var row fxRateRow
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ? AND as_of_date = ? AND kind = ?", normalizeCode(base), normalizeCode(quote), on.String(), string(kind)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return keepbook.FxRatePoint{}, false, nil
	}
	if err != nil {
		return keepbook.FxRatePoint{}, false, fmt.Errorf("failed to read fx rate %s/%s: %w", base, quote, err)
	}
	return row.point(), true, nil
}

func (s *Store) AllFxRates(ctx context.Context, base, quote string) ([]keepbook.FxRatePoint, error) {
	var rows []fxRateRow
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ?", normalizeCode(base), normalizeCode(quote)).
		Order("as_of_date").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read fx rates %s/%s: %w", base, quote, err)
	}
	out := make([]keepbook.FxRatePoint, len(rows))
	for i, r := range rows {
		out[i] = r.point()
	}
	return out, nil
}

var _ interface {
	keepbook.Storage
	keepbook.MarketDataStore
} = (*Store)(nil)

// normalizeCode trims and upper-cases a currency code.
func normalizeCode(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
