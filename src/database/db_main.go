package database

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockbot/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	}

	var (
		db  *gorm.DB
		err error
	)
	if config.DatabaseURLMain != "" {
		db, err = gorm.Open(postgres.Open(config.DatabaseURLMain), gormCfg)
	} else {
		logrus.WithField("path", config.SQLitePath).
			Warn("[database] DATABASE_URL_MAIN not set, using local sqlite store")
		db, err = gorm.Open(sqlite.Open(config.SQLitePath), gormCfg)
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Failed to get DB from GORM")
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := MainDB.AutoMigrate(
		&model.Order{},
		&model.AuditLog{},
		&model.RiskState{},
		&model.TradeStamp{},
		&model.BotConfig{},
	); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}

	return nil
}

// Ping verifies store liveness for readiness checks.
func Ping() bool {
	if MainDB == nil {
		return false
	}
	sqlDB, err := MainDB.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}
