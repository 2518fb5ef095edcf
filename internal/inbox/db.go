package inbox

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN keeps the inbox for the lifetime of the process only.
const MemoryDSN = ":memory:"

type ReceivedFile struct {
	ID         uint   `gorm:"primaryKey"`
	RemoteID   string `gorm:"index"`
	Name       string
	MimeType   string
	Size       int64
	Hash       string
	Data       []byte
	ReceivedAt int64
}

func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening inbox database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&ReceivedFile{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
