// Package sqlite provides the default durable store backend: a single SQLite
// file accessed through gorm, holding every collection in one records table.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/servicedesk/requests/internal/infrastructure/store"
)

// recordRow holds one encoded record.
type recordRow struct {
	Collection string `gorm:"primaryKey;size:32"`
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Data       []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (recordRow) TableName() string { return "records" }

// sequenceRow holds the next identifier of a collection.
type sequenceRow struct {
	Collection string `gorm:"primaryKey;size:32"`
	NextID     int64  `gorm:"not null"`
}

func (sequenceRow) TableName() string { return "sequences" }

// Config captures the settings for opening the database file.
type Config struct {
	Path  string
	Debug bool
}

// Backend implements store.Backend on SQLite.
type Backend struct {
	db  *gorm.DB
	log zerolog.Logger
}

var _ store.Backend = (*Backend)(nil)

// Open creates the parent directory if needed, opens the database with WAL
// journaling and migrates the schema.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Backend, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	gormLogger := logger.Discard
	if cfg.Debug {
		gormLogger = logger.Default
	}
	c := &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}

	dsn := cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), c)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	b := &Backend{db: db, log: log}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA temp_store = MEMORY;"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: pragma: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&recordRow{}, &sequenceRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	log.Debug().Str("path", cfg.Path).Msg("sqlite store opened")
	return b, nil
}

func (b *Backend) Load(ctx context.Context, collection string) (store.Snapshot, error) {
	var rows []recordRow
	if err := b.db.WithContext(ctx).Where("collection = ?", collection).Find(&rows).Error; err != nil {
		return store.Snapshot{}, fmt.Errorf("load %s: %w", collection, err)
	}

	snap := store.Snapshot{Rows: make(map[int64][]byte, len(rows)), NextID: 1}
	for _, r := range rows {
		snap.Rows[r.ID] = r.Data
		if r.ID >= snap.NextID {
			snap.NextID = r.ID + 1
		}
	}

	var seq sequenceRow
	err := b.db.WithContext(ctx).Where("collection = ?", collection).First(&seq).Error
	switch {
	case err == nil:
		if seq.NextID > snap.NextID {
			snap.NextID = seq.NextID
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return store.Snapshot{}, fmt.Errorf("load %s sequence: %w", collection, err)
	}
	return snap, nil
}

// Put upserts the record and advances the sequence in one transaction.
func (b *Backend) Put(ctx context.Context, collection string, id int64, data []byte) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := recordRow{Collection: collection, ID: id, Data: data, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("put %s/%d: %w", collection, id, err)
		}
		seq := sequenceRow{Collection: collection, NextID: id + 1}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}},
			DoUpdates: clause.Assignments(map[string]any{"next_id": gorm.Expr("MAX(next_id, excluded.next_id)")}),
		}).Create(&seq).Error
		if err != nil {
			return fmt.Errorf("advance %s sequence: %w", collection, err)
		}
		return nil
	})
}

func (b *Backend) Delete(ctx context.Context, collection string, id int64) error {
	err := b.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&recordRow{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", collection, id, err)
	}
	return nil
}

// ReplaceAll rewrites every named collection inside one transaction.
func (b *Backend) ReplaceAll(ctx context.Context, sets map[string]store.Snapshot) error {
	now := time.Now().UTC()
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for collection, set := range sets {
			if err := tx.Where("collection = ?", collection).Delete(&recordRow{}).Error; err != nil {
				return fmt.Errorf("replace %s: clear: %w", collection, err)
			}
			rows := make([]recordRow, 0, len(set.Rows))
			for id, data := range set.Rows {
				rows = append(rows, recordRow{Collection: collection, ID: id, Data: data, UpdatedAt: now})
			}
			if len(rows) > 0 {
				if err := tx.CreateInBatches(rows, 200).Error; err != nil {
					return fmt.Errorf("replace %s: insert: %w", collection, err)
				}
			}
			seq := sequenceRow{Collection: collection, NextID: set.NextID}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "collection"}},
				DoUpdates: clause.Assignments(map[string]any{"next_id": gorm.Expr("MAX(next_id, excluded.next_id)")}),
			}).Create(&seq).Error
			if err != nil {
				return fmt.Errorf("replace %s: sequence: %w", collection, err)
			}
		}
		return nil
	})
}

// Close checkpoints the WAL and closes the database.
func (b *Backend) Close() error {
	if err := b.db.Exec("PRAGMA wal_checkpoint;").Error; err != nil {
		b.log.Warn().Err(err).Msg("sqlite checkpoint failed")
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
