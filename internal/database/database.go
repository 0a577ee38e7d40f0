package database

import (
	"os"
	"path/filepath"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"go.uber.org/zap"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Init(dsn string) (*gorm.DB, error) {
	if _, err := os.Stat(dsn); os.IsNotExist(err) {
		zap.S().Infof("database file not found at '%s', creating directory for it.", dsn)
		// Ensure the directory for the database file exists.
		dbDir := filepath.Dir(dsn)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// sqlite has a single writer, concurrent position updates queue on the pool.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto migrate schema
	err = db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Component{},
		&models.CircuitTiming{},
		&models.Competition{},
		&models.Participant{},
		&models.CompetitionTiming{},
		&models.CompetitionRule{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
