package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

// FileStore keeps every document as a JSON file under one data directory.
// Writes go to a temp file first and are renamed into place, with rotating
// .bak copies of the previous contents.
type FileStore struct {
	mu        sync.Mutex
	logger    *zap.Logger
	dir       string
	users     string
	portf     string
	rates     string
	history   string
	backups   int
	retention int
}

// NewFileStore builds the store and ensures the data directory exists.
func NewFileStore(cfg *config.Config, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", cfg.DataDir, err)
	}
	return &FileStore{
		logger:    logger,
		dir:       cfg.DataDir,
		users:     filepath.Join(cfg.DataDir, cfg.UsersFile),
		portf:     filepath.Join(cfg.DataDir, cfg.PortfoliosFile),
		rates:     filepath.Join(cfg.DataDir, cfg.RatesFile),
		history:   filepath.Join(cfg.DataDir, cfg.HistoryFile),
		backups:   cfg.BackupCount,
		retention: cfg.HistoryRetention,
	}, nil
}

// LoadRates reads the rates document, migrating the legacy flat layout
// (pair keys at the top level) into the nested one on first encounter.
func (s *FileStore) LoadRates(_ context.Context) (*model.RatesDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.rates)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewRatesDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	if len(data) == 0 {
		return model.NewRatesDocument(), nil
	}

	var doc model.RatesDocument
	if err := json.Unmarshal(data, &doc); err == nil && doc.Pairs != nil {
		return &doc, nil
	}

	migrated, err := migrateLegacyRates(data)
	if err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}
	s.logger.Info("store.rates_migrated",
		zap.Int("pairs", len(migrated.Pairs)))
	return migrated, nil
}

// migrateLegacyRates converts the old flat document, where each top-level
// key except "source" and "last_refresh" is a pair entry, into the nested
// shape. Values and sources are preserved; per-pair source falls back to the
// document-level one.
func migrateLegacyRates(data []byte) (*model.RatesDocument, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	doc := model.NewRatesDocument()
	var docSource string
	if v, ok := raw["source"]; ok {
		_ = json.Unmarshal(v, &docSource)
	}
	if v, ok := raw["last_refresh"]; ok {
		_ = json.Unmarshal(v, &doc.LastRefresh)
	}

	for key, v := range raw {
		if key == "source" || key == "last_refresh" || key == "pairs" {
			continue
		}
		if _, _, ok := model.SplitPairKey(key); !ok {
			continue
		}
		var pr model.PairRate
		if err := json.Unmarshal(v, &pr); err != nil {
			continue
		}
		if pr.Source == "" {
			pr.Source = docSource
		}
		doc.Pairs[key] = pr
	}
	return doc, nil
}

func (s *FileStore) SaveRates(_ context.Context, doc *model.RatesDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.rates, doc)
}

func (s *FileStore) LoadUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []model.User
	if err := s.readJSON(s.users, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *FileStore) SaveUsers(_ context.Context, users []model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.users, users)
}

func (s *FileStore) LoadPortfolios(_ context.Context) (map[int]*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Portfolio
	if err := s.readJSON(s.portf, &list); err != nil {
		return nil, err
	}
	portfolios := make(map[int]*model.Portfolio, len(list))
	for _, p := range list {
		if p.Wallets == nil {
			p.Wallets = make(map[string]*model.Wallet)
		}
		portfolios[p.UserID] = p
	}
	return portfolios, nil
}

func (s *FileStore) SavePortfolios(_ context.Context, portfolios map[int]*model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*model.Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return s.writeJSON(s.portf, list)
}

// AppendRecords merges new observations into the history file, keeping at
// most retention records per pair, oldest evicted first.
func (s *FileStore) AppendRecords(_ context.Context, records []model.RateRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []model.RateRecord
	if err := s.readJSON(s.history, &existing); err != nil {
		return err
	}
	existing = append(existing, records...)

	byPair := make(map[string][]model.RateRecord)
	for _, rec := range existing {
		key := model.PairKey(rec.FromCurrency, rec.ToCurrency)
		byPair[key] = append(byPair[key], rec)
	}

	var kept []model.RateRecord
	for _, recs := range byPair {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })
		if s.retention > 0 && len(recs) > s.retention {
			recs = recs[len(recs)-s.retention:]
		}
		kept = append(kept, recs...)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Timestamp != kept[j].Timestamp {
			return kept[i].Timestamp < kept[j].Timestamp
		}
		return kept[i].ID < kept[j].ID
	})

	return s.writeJSON(s.history, kept)
}

// readJSON decodes path into dest; a missing or empty file leaves dest as-is.
func (s *FileStore) readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes atomically: marshal, rotate backups, temp file, rename.
func (s *FileStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	s.rotateBackups(path)

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// rotateBackups shifts path.bak.1..N-1 up one slot and copies the current
// file into .bak.1. Best effort; a failed backup never blocks the write.
func (s *FileStore) rotateBackups(path string) {
	if s.backups <= 0 {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	for i := s.backups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.bak.%d", path, i)
		to := fmt.Sprintf("%s.bak.%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("store.backup_read_failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(fmt.Sprintf("%s.bak.1", path), data, 0o644); err != nil {
		s.logger.Warn("store.backup_write_failed", zap.String("path", path), zap.Error(err))
	}
}
