package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockbot/src/database"
	"stockbot/src/model"
)

// ConfigRepository persists the bot configuration. Callers re-read the row on
// every evaluation; nothing caches, so admin updates take effect on the next
// cycle or attempt.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{db: database.MainDB}
}

func (r *ConfigRepository) WithDB(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get fetches the current configuration, seeding defaults on first read.
func (r *ConfigRepository) Get(ctx context.Context) (*model.BotConfig, error) {
	var cfg model.BotConfig

	err := r.db.WithContext(ctx).
		Where("id = ?", model.BotConfigID).
		First(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "ConfigRepository",
				"op":   "Get",
			}).WithError(err).Error("Failed to fetch bot config")

			return nil, err
		}

		cfg = model.DefaultBotConfig()
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&cfg).Error; err != nil {
			logger.WithFields(map[string]interface{}{
				"repo": "ConfigRepository",
				"op":   "Get",
			}).WithError(err).Error("Failed to seed bot config")

			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ConfigRepository",
			"op":   "Get",
		}).Info("Bot config seeded with defaults")
	}

	return &cfg, nil
}

// Update overlays the given fields on the current config and returns the
// merged result.
func (r *ConfigRepository) Update(
	ctx context.Context,
	fields map[string]interface{},
) (*model.BotConfig, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "ConfigRepository",
		"op":     "Update",
		"fields": len(fields),
	}).Info("Updating bot config")

	// Ensure the row exists before updating.
	if _, err := r.Get(ctx); err != nil {
		return nil, err
	}

	var cfg model.BotConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockedTx(tx).
			Where("id = ?", model.BotConfigID).
			First(&cfg).Error; err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Model(&cfg).Updates(fields).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConfigRepository",
			"op":   "Update",
		}).WithError(err).Error("Failed to update bot config")

		return nil, err
	}

	return &cfg, nil
}
