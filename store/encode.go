package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/date"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	accountsFilename = "accounts.yaml"
	balancesFolder   = "balances"
	pricesFolder     = "prices"
	fxFolder         = "fx"
	yearFilesGlob    = "[0-9][0-9][0-9][0-9].jsonl"
)

// This file persists a Memory store in a data directory.
//
//   Decode: read accounts.yaml, then every yearly JSONL file of each folder
//           line by line (keeping filename and line number for errors), and
//           add each line to the store.
//
//   Encode: write accounts.yaml, then for each folder sort the records, route
//           each to the file of its year, write the files and delete the
//           yearly files that were not written.

// accountsFile is the content of accounts.yaml.
type accountsFile struct {
	Connections []keepbook.Connection `yaml:"connections"`
	Accounts    []yamlAccount         `yaml:"accounts"`
}

type yamlAccount struct {
	keepbook.Account `yaml:",inline"`
	Config           *keepbook.AccountConfig `yaml:"config,omitempty"`
}

// jbalance is one line of a balances file.
type jbalance struct {
	AccountID string                  `json:"account_id"`
	Timestamp string                  `json:"timestamp"`
	Balances  []keepbook.AssetBalance `json:"balances"`
}

// jprice is one line of a prices file.
type jprice struct {
	AssetID       keepbook.AssetID   `json:"asset_id"`
	AsOfDate      date.Date          `json:"as_of_date"`
	Timestamp     string             `json:"timestamp"`
	Price         string             `json:"price"`
	QuoteCurrency string             `json:"quote_currency"`
	Kind          keepbook.PriceKind `json:"kind"`
	Source        string             `json:"source,omitempty"`
}

// jrate is one line of an fx file.
type jrate struct {
	Base      string              `json:"base"`
	Quote     string              `json:"quote"`
	AsOfDate  date.Date           `json:"as_of_date"`
	Timestamp string              `json:"timestamp"`
	Rate      string              `json:"rate"`
	Kind      keepbook.FxRateKind `json:"kind"`
	Source    string              `json:"source,omitempty"`
}

// fileLine structures a line from a collection of files as the persistence layer represent them.
type fileLine struct {
	filename string
	i        int
	txt      string
}

func (l fileLine) errorf(format string, args ...any) error {
	return fmt.Errorf("parse error %s:%v: %s", l.filename, l.i, fmt.Sprintf(format, args...))
}

// decodeLines reads all non-empty lines of the yearly files of a folder.
func decodeLines(folder string) ([]fileLine, error) {
	filenames, err := filepath.Glob(filepath.Join(folder, yearFilesGlob))
	if err != nil {
		return nil, fmt.Errorf("load error: cannot scan folder %q: %w", folder, err)
	}
	slices.Sort(filenames)
	var list []fileLine
	for _, filename := range filenames {
		f, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("load error: cannot open %q for reading: %w", filename, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		i := 0
		for scanner.Scan() {
			i++
			if txt := scanner.Text(); strings.TrimSpace(txt) != "" {
				list = append(list, fileLine{filename, i, txt})
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load error: cannot read %q: %w", filename, err)
		}
	}
	return list, nil
}

// Decode reads a data directory into a new Memory store. A missing directory,
// or missing files in it, are read as empty.
func Decode(dir string, logger *zap.Logger) (*Memory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := NewMemory()

	if err := decodeAccounts(m, filepath.Join(dir, accountsFilename)); err != nil {
		return nil, err
	}

	lines, err := decodeLines(filepath.Join(dir, balancesFolder))
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		var j jbalance
		if err := json.Unmarshal([]byte(l.txt), &j); err != nil {
			return nil, l.errorf("not a correct balance: %v", err)
		}
		ts, err := keepbook.ParseTimestamp(j.Timestamp)
		if err != nil {
			return nil, l.errorf("invalid timestamp %q: %v", j.Timestamp, err)
		}
		if err := m.AppendBalance(j.AccountID, keepbook.BalanceSnapshot{Timestamp: ts, Balances: j.Balances}); err != nil {
			return nil, l.errorf("%v", err)
		}
	}
	logger.Info("balances loaded", zap.String("dir", dir), zap.Int("snapshots", len(lines)))

	if lines, err = decodeLines(filepath.Join(dir, pricesFolder)); err != nil {
		return nil, err
	}
	for _, l := range lines {
		var j jprice
		if err := json.Unmarshal([]byte(l.txt), &j); err != nil {
			return nil, l.errorf("not a correct price: %v", err)
		}
		ts, err := keepbook.ParseTimestamp(j.Timestamp)
		if err != nil {
			return nil, l.errorf("invalid timestamp %q: %v", j.Timestamp, err)
		}
		err = m.AddPrice(keepbook.PricePoint{
			AssetID:       j.AssetID,
			AsOfDate:      j.AsOfDate,
			Timestamp:     ts,
			Price:         j.Price,
			QuoteCurrency: j.QuoteCurrency,
			Kind:          j.Kind,
			Source:        j.Source,
		})
		if err != nil {
			return nil, l.errorf("%v", err)
		}
	}
	logger.Info("prices loaded", zap.String("dir", dir), zap.Int("prices", len(lines)))

	if lines, err = decodeLines(filepath.Join(dir, fxFolder)); err != nil {
		return nil, err
	}
	for _, l := range lines {
		var j jrate
		if err := json.Unmarshal([]byte(l.txt), &j); err != nil {
			return nil, l.errorf("not a correct fx rate: %v", err)
		}
		ts, err := keepbook.ParseTimestamp(j.Timestamp)
		if err != nil {
			return nil, l.errorf("invalid timestamp %q: %v", j.Timestamp, err)
		}
		err = m.AddFxRate(keepbook.FxRatePoint{
			Base:      j.Base,
			Quote:     j.Quote,
			AsOfDate:  j.AsOfDate,
			Timestamp: ts,
			Rate:      j.Rate,
			Kind:      j.Kind,
			Source:    j.Source,
		})
		if err != nil {
			return nil, l.errorf("%v", err)
		}
	}
	logger.Info("fx rates loaded", zap.String("dir", dir), zap.Int("rates", len(lines)))
	return m, nil
}

func decodeAccounts(m *Memory, filename string) error {
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load error: cannot read %q: %w", filename, err)
	}
	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("load error: format error in %q: %w", filename, err)
	}
	for _, c := range f.Connections {
		if c.ID == "" {
			return fmt.Errorf("load error: format error in %q: connection %q without id", filename, c.Name)
		}
		if _, err := m.AddConnection(c); err != nil {
			return fmt.Errorf("load error: format error in %q: %w", filename, err)
		}
	}
	for _, a := range f.Accounts {
		if a.ID == "" {
			return fmt.Errorf("load error: format error in %q: account %q without id", filename, a.Name)
		}
		var cfg keepbook.AccountConfig
		if a.Config != nil {
			cfg = *a.Config
			if cfg.BalanceBackfill, err = keepbook.ParseBackfillPolicy(string(cfg.BalanceBackfill)); err != nil {
				return fmt.Errorf("load error: account %q in %q: %w", a.ID, filename, err)
			}
		}
		if _, err := m.AddAccount(a.Account, cfg); err != nil {
			return fmt.Errorf("load error: format error in %q: %w", filename, err)
		}
	}
	return nil
}

// Persist section.

// yearLine is a JSONL line routed to the file of its year.
type yearLine struct {
	year int
	data []byte
}

// Encode writes the store into a data directory, replacing its content.
func Encode(dir string, m *Memory, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist error: cannot create folder %q: %w", dir, err)
	}
	if err := encodeAccounts(m, filepath.Join(dir, accountsFilename), logger); err != nil {
		return err
	}

	// Balances, sorted by timestamp; ties keep the account and append order.
	type record struct {
		account string
		s       keepbook.BalanceSnapshot
	}
	var records []record
	for _, a := range m.accounts {
		for _, s := range m.snapshots[a.ID] {
			records = append(records, record{a.ID, s})
		}
	}
	slices.SortStableFunc(records, func(a, b record) int { return a.s.Timestamp.Compare(b.s.Timestamp) })
	lines := make([]yearLine, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(jbalance{
			AccountID: r.account,
			Timestamp: keepbook.FormatTimestamp(r.s.Timestamp, keepbook.TimestampNanos),
			Balances:  r.s.Balances,
		})
		if err != nil {
			return fmt.Errorf("persist error: cannot marshal balance of %q: %w", r.account, err)
		}
		lines = append(lines, yearLine{r.s.Timestamp.UTC().Year(), data})
	}
	if err := encodeYearFiles(filepath.Join(dir, balancesFolder), lines, logger); err != nil {
		return err
	}

	// Prices, sorted by day then asset id.
	var prices []keepbook.PricePoint
	for _, id := range m.assetIDs() {
		prices = append(prices, m.prices[id]...)
	}
	slices.SortStableFunc(prices, func(a, b keepbook.PricePoint) int { return a.AsOfDate.Compare(b.AsOfDate) })
	lines = make([]yearLine, 0, len(prices))
	for _, p := range prices {
		data, err := json.Marshal(jprice{
			AssetID:       p.AssetID,
			AsOfDate:      p.AsOfDate,
			Timestamp:     keepbook.FormatTimestamp(p.Timestamp, keepbook.TimestampNanos),
			Price:         p.Price,
			QuoteCurrency: p.QuoteCurrency,
			Kind:          p.Kind,
			Source:        p.Source,
		})
		if err != nil {
			return fmt.Errorf("persist error: cannot marshal price of %s: %w", p.AssetID, err)
		}
		lines = append(lines, yearLine{p.AsOfDate.Year(), data})
	}
	if err := encodeYearFiles(filepath.Join(dir, pricesFolder), lines, logger); err != nil {
		return err
	}

	// FX rates, sorted by day then pair.
	var rates []keepbook.FxRatePoint
	for _, k := range m.pairs() {
		rates = append(rates, m.rates[k]...)
	}
	slices.SortStableFunc(rates, func(a, b keepbook.FxRatePoint) int { return a.AsOfDate.Compare(b.AsOfDate) })
	lines = make([]yearLine, 0, len(rates))
	for _, r := range rates {
		data, err := json.Marshal(jrate{
			Base:      r.Base,
			Quote:     r.Quote,
			AsOfDate:  r.AsOfDate,
			Timestamp: keepbook.FormatTimestamp(r.Timestamp, keepbook.TimestampNanos),
			Rate:      r.Rate,
			Kind:      r.Kind,
			Source:    r.Source,
		})
		if err != nil {
			return fmt.Errorf("persist error: cannot marshal fx rate %s/%s: %w", r.Base, r.Quote, err)
		}
		lines = append(lines, yearLine{r.AsOfDate.Year(), data})
	}
	return encodeYearFiles(filepath.Join(dir, fxFolder), lines, logger)
}

func encodeAccounts(m *Memory, filename string, logger *zap.Logger) error {
	f := accountsFile{Connections: m.connections}
	for _, a := range m.accounts {
		ya := yamlAccount{Account: a}
		if cfg, ok := m.configs[a.ID]; ok {
			ya.Config = &cfg
		}
		f.Accounts = append(f.Accounts, ya)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("persist error: cannot marshal accounts: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("persist error: cannot write file %q: %w", filename, err)
	}
	logger.Info("write accounts file", zap.String("name", filename), zap.Int("accounts", len(m.accounts)))
	return nil
}

// encodeYearFiles writes lines, already sorted by year, into one file per
// year, then deletes the yearly files of the folder that were not written.
func encodeYearFiles(folder string, lines []yearLine, logger *zap.Logger) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("persist error: cannot create folder %q: %w", folder, err)
	}

	var current *bufio.Writer
	var currentFile *os.File
	var currentFilename string
	createdFiles := make(map[string]struct{})
	closeCurrent := func() error {
		if currentFile == nil {
			return nil
		}
		if err := current.Flush(); err != nil {
			currentFile.Close()
			return fmt.Errorf("persist error: write error on file %q: %w", currentFilename, err)
		}
		return currentFile.Close()
	}
	for _, l := range lines {
		filename := filepath.Join(folder, fmt.Sprintf("%04d.jsonl", l.year))
		// Check whether we should switch to a new file.
		if filename != currentFilename {
			if err := closeCurrent(); err != nil {
				return err
			}
			f, err := os.Create(filename)
			if err != nil {
				return fmt.Errorf("persist error: cannot create file %q: %w", filename, err)
			}
			currentFile, currentFilename, current = f, filename, bufio.NewWriter(f)
			createdFiles[filename] = struct{}{}
			logger.Info("create data file", zap.String("name", filename))
		}
		current.Write(l.data)
		current.WriteByte('\n')
	}
	if err := closeCurrent(); err != nil {
		return err
	}

	// Delete extraneous files.
	filenames, err := filepath.Glob(filepath.Join(folder, yearFilesGlob))
	if err != nil {
		return fmt.Errorf("persist error: cannot scan folder %q for files to be deleted: %w", folder, err)
	}
	for _, filename := range filenames {
		if _, ok := createdFiles[filename]; ok {
			continue
		}
		if err := os.Remove(filename); err != nil {
			return fmt.Errorf("persist error: cannot delete file %q: %w", filename, err)
		}
		logger.Info("delete data file", zap.String("name", filename))
	}
	return nil
}

// normalizeCode trims and upper-cases a currency code.
func normalizeCode(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
