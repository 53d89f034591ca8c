package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/etnz/keepbook"
)

// connectionRow is a connection to a financial institution.
type connectionRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Synchronizer string
}

func (connectionRow) TableName() string { return "connections" }

// accountRow is an account with its configuration inlined.
type accountRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	ConnectionID string `gorm:"index"`
	// Tags are stored comma separated.
	Tags      string
	Active    bool
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	// HasConfig tells an explicit configuration from the default one.
	HasConfig            bool
	BalanceBackfill      string
	ExcludeFromPortfolio bool
	BalanceStaleness     time.Duration
	// Seq keeps the listing order.
	Seq int64 `gorm:"index"`
}

func (accountRow) TableName() string { return "accounts" }

func newAccountRow(a keepbook.Account, cfg *keepbook.AccountConfig, seq int64) accountRow {
	row := accountRow{
		ID:           a.ID,
		Name:         a.Name,
		ConnectionID: a.ConnectionID,
		Tags:         strings.Join(a.Tags, ","),
		Active:       a.Active,
		CreatedAt:    a.CreatedAt.UTC(),
		Seq:          seq,
	}
	if cfg != nil {
		row.HasConfig = true
		row.BalanceBackfill = string(cfg.BalanceBackfill)
		row.ExcludeFromPortfolio = cfg.ExcludeFromPortfolio
		row.BalanceStaleness = cfg.BalanceStaleness
	}
	return row
}

func (r accountRow) account() keepbook.Account {
	a := keepbook.Account{
		ID:           r.ID,
		Name:         r.Name,
		ConnectionID: r.ConnectionID,
		Active:       r.Active,
	}
	if !r.CreatedAt.IsZero() {
		a.CreatedAt = r.CreatedAt.UTC()
	}
	if r.Tags != "" {
		a.Tags = strings.Split(r.Tags, ",")
	}
	return a
}

func (r accountRow) config() keepbook.AccountConfig {
	return keepbook.AccountConfig{
		BalanceBackfill:      keepbook.BackfillPolicy(r.BalanceBackfill),
		ExcludeFromPortfolio: r.ExcludeFromPortfolio,
		BalanceStaleness:     r.BalanceStaleness,
	}
}

// snapshotRow is a balance snapshot; its id gives the append order.
type snapshotRow struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	AccountID string       `gorm:"index;not null"`
	Timestamp time.Time    `gorm:"not null"`
	Balances  []balanceRow `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

func (snapshotRow) TableName() string { return "balance_snapshots" }

// balanceRow is one asset balance of a snapshot.
type balanceRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SnapshotID uint   `gorm:"index;not null"`
	Position   int    `gorm:"not null"`
	AssetID    string `gorm:"index;not null"`
	// Asset is the JSON form of the asset, as provided.
	Asset  string `gorm:"not null"`
	Amount string `gorm:"not null"`
}

func (balanceRow) TableName() string { return "asset_balances" }

func (r snapshotRow) snapshot() (keepbook.BalanceSnapshot, error) {
	s := keepbook.BalanceSnapshot{Timestamp: r.Timestamp.UTC()}
	for _, b := range r.Balances {
		var asset keepbook.Asset
		if err := json.Unmarshal([]byte(b.Asset), &asset); err != nil {
			return s, err
		}
		s.Balances = append(s.Balances, keepbook.AssetBalance{Asset: asset, Amount: b.Amount})
	}
	return s, nil
}

// priceRow is one price observation, unique per asset, day and kind.
type priceRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	AssetID       string `gorm:"uniqueIndex:idx_price_day;not null"`
	AsOfDate      string `gorm:"uniqueIndex:idx_price_day;not null"`
	Kind          string `gorm:"uniqueIndex:idx_price_day;not null"`
	Timestamp     time.Time
	Price         string `gorm:"not null"`
	QuoteCurrency string `gorm:"not null"`
	Source        string
}

func (priceRow) TableName() string { return "prices" }

// fxRateRow is one FX rate observation, unique per pair, day and kind.
type fxRateRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Base      string `gorm:"uniqueIndex:idx_fx_day;not null"`
	Quote     string `gorm:"uniqueIndex:idx_fx_day;not null"`
	AsOfDate  string `gorm:"uniqueIndex:idx_fx_day;not null"`
	Kind      string `gorm:"uniqueIndex:idx_fx_day;not null"`
	Timestamp time.Time
	Rate      string `gorm:"not null"`
	Source    string
}

func (fxRateRow) TableName() string { return "fx_rates" }

// allModels is the list of models to auto-migrate.
var allModels = []any{
	&connectionRow{},
	&accountRow{},
	&snapshotRow{},
	&balanceRow{},
	&priceRow{},
	&fxRateRow{},
}
