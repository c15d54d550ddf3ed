// Package db opens the audit database and keeps its schema current.
package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/suPer8Hu/voice-intake/internal/audit"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens dsn with the named driver: mysql (default), postgres or sqlite.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	m := gormigrate.New(gdb, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_call_sessions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&audit.CallSession{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("call_sessions")
			},
		},
		{
			ID: "002_transcript_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&audit.TranscriptEntry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("transcript_entries")
			},
		},
		{
			ID: "003_medical_extractions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&audit.MedicalExtraction{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("medical_extractions")
			},
		},
	})
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
