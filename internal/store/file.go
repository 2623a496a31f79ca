package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/profile"
)

// FileStore persists the stats snapshot as a single JSON document.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at path, creating parent
// directories if needed.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file path not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating stats directory: %w", err)
		}
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Load implements Store. A missing file is a fresh deployment and
// returns an empty map.
func (s *FileStore) Load(ctx context.Context) (map[string]profile.Stats, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]profile.Stats{}, nil
		}
		return nil, fmt.Errorf("reading stats file: %w", err)
	}

	var records map[string]statsRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing stats file: %w", err)
	}

	stats := make(map[string]profile.Stats, len(records))
	for name, r := range records {
		stats[name] = r.toStats()
	}

	s.logger.Debug("loaded stats file", "path", s.path, "profiles", len(stats))
	return stats, nil
}

// Save implements Store. The document is written to a temp file and
// renamed so a crash mid-write never corrupts the previous snapshot.
func (s *FileStore) Save(ctx context.Context, stats map[string]profile.Stats) error {
	now := time.Now().UTC()
	records := make(map[string]statsRecord, len(stats))
	for name, st := range stats {
		r := fromStats(st)
		r.LastSaved = now
		records[name] = r
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp stats file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing stats file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing stats file: %w", err)
	}

	s.logger.Debug("saved stats file", "path", s.path, "profiles", len(stats))
	return nil
}
