package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ Store = (*SQLStore)(nil)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// sessionEntry is one persisted key. All three rows written by one Write
// share a Generation.
type sessionEntry struct {
	Name       string    `gorm:"primaryKey;type:varchar(32)"`
	Value      string    `gorm:"type:text;not null"`
	Generation string    `gorm:"type:varchar(26);not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (sessionEntry) TableName() string {
	return "session_entries"
}

// SQLStore keeps the entries in a local SQLite database. A write upserts
// all three rows in one transaction; Read additionally rejects rows from
// different generations.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens (creating if needed) the database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	const busyTimeout = 5000 // 5 seconds

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&sessionEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session table: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Read(ctx context.Context) (*Session, error) {
	var rows []sessionEntry
	if err := s.db.WithContext(ctx).Where("name IN ?", sessionKeys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query session entries: %w", err)
	}
	if len(rows) != len(sessionKeys) {
		return nil, ErrNotFound
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.Generation != rows[0].Generation {
			return nil, ErrNotFound
		}
		values[row.Name] = row.Value
	}
	return fromEntries(values)
}

func (s *SQLStore) Write(ctx context.Context, sess *Session) error {
	values, err := entries(sess)
	if err != nil {
		return err
	}

	generation := ulid.Make().String()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range sessionKeys {
			row := sessionEntry{Name: key, Value: values[key], Generation: generation}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("name IN ?", sessionKeys).Delete(&sessionEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete session entries: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
