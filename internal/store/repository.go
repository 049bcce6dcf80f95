package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/power"
	"codeberg.org/mutker/cpuctl/internal/profile"

	_ "github.com/mattn/go-sqlite3"
)

const (
	settingAutoScaling = "auto_scaling"
	settingDynamicMode = "dynamic_mode"
)

// Repository is the durable side of the power engine: it mirrors history and
// demand events (power.AuditSink) and persists configuration across restarts
// (power.ConfigStore).
type Repository struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ power.AuditSink   = (*Repository)(nil)
	_ power.ConfigStore = (*Repository)(nil)
)

func NewRepository(cfg Config) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	logger.Debug().Msgf("Initializing audit repository at: %s", cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RecordHistory(entry power.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO history (timestamp, level, reason, source, frequency_mhz)
		VALUES (?, ?, ?, ?, ?)`,
		entry.Timestamp.Unix(),
		entry.Level.String(),
		entry.Reason,
		entry.Source,
		entry.FrequencyMHz,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *Repository) RecordDemandEvent(event string, demand power.Demand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO demand_events (timestamp, event, source, level, capability, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		demand.RegisteredAt.Unix(),
		event,
		demand.Source,
		demand.Level.String(),
		demand.Capability,
		demand.Description,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *Repository) LoadAutoScaling() (power.AutoScalingConfig, bool, error) {
	var cfg power.AutoScalingConfig
	ok, err := r.loadSetting(settingAutoScaling, &cfg)

	return cfg, ok, err
}

func (r *Repository) SaveAutoScaling(cfg power.AutoScalingConfig) error {
	return r.saveSetting(settingAutoScaling, cfg)
}

func (r *Repository) LoadDynamicMode() (power.DynamicModeConfig, bool, error) {
	var cfg power.DynamicModeConfig
	ok, err := r.loadSetting(settingDynamicMode, &cfg)

	return cfg, ok, err
}

func (r *Repository) SaveDynamicMode(cfg power.DynamicModeConfig) error {
	return r.saveSetting(settingDynamicMode, cfg)
}

func (r *Repository) loadSetting(key string, out any) (bool, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errFactory.Wrap(ErrStorageAccess, err)
	}

	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, errFactory.Wrap(ErrDecodeSetting, err)
	}

	return true, nil
}

func (r *Repository) saveSetting(key string, value any) error {
	errFactory := errors.New()

	encoded, err := json.Marshal(value)
	if err != nil {
		return errFactory.Wrap(ErrEncodeSetting, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(encoded),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// History reads back the most recent limit entries, newest first
func (r *Repository) History(limit int) ([]power.HistoryEntry, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`
		SELECT timestamp, level, reason, source, frequency_mhz
		FROM history ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var entries []power.HistoryEntry
	for rows.Next() {
		var entry power.HistoryEntry
		var timestamp int64
		var level string
		if err := rows.Scan(&timestamp, &level, &entry.Reason, &entry.Source, &entry.FrequencyMHz); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		entry.Timestamp = time.Unix(timestamp, 0)
		if parsed, ok := profile.ParseLevel(level); ok {
			entry.Level = parsed
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return entries, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Debug().Err(err).Msg("WAL checkpoint on close failed")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}
