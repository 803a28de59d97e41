package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/veildata/api/internal/config"
	"github.com/veildata/api/internal/model"
)

// ErrNotFound is returned by all repositories when the row does not exist
// (including soft-deleted rows).
var ErrNotFound = errors.New("not found")

// Open connects to Postgres and runs migrations.
func Open(cfg *config.DatabaseConfig, log *zap.SugaredLogger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	log.Infow("connected to postgres", "host", cfg.Host, "db", cfg.Name)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

var memorySeq atomic.Uint64

// OpenMemory opens a fresh in-memory sqlite database. Used by tests. Each call
// gets its own database; cache=shared keeps gorm's pooled connections on it.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memorySeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Organization{},
		&model.User{},
		&model.Project{},
		&model.Source{},
		&model.SourceConfig{},
		&model.ProcessingJob{},
		&model.Dataset{},
	); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
