package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockbot/src/database"
	"stockbot/src/model"
)

// RiskRepository persists the single risk-state row and the per-symbol
// trade stamps used for cooldown checks.
type RiskRepository struct {
	db *gorm.DB
}

func NewRiskRepository() *RiskRepository {
	return &RiskRepository{db: database.MainDB}
}

func (r *RiskRepository) WithDB(db *gorm.DB) *RiskRepository {
	return &RiskRepository{db: db}
}

// GetState fetches the risk state, lazily creating a zero-value row on the
// first read.
func (r *RiskRepository) GetState(ctx context.Context) (*model.RiskState, error) {
	var state model.RiskState

	err := r.db.WithContext(ctx).
		Where("id = ?", model.RiskStateID).
		First(&state).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "RiskRepository",
				"op":   "GetState",
			}).WithError(err).Error("Failed to fetch risk state")

			return nil, err
		}

		state = model.RiskState{
			ID:        model.RiskStateID,
			DailyPnL:  decimal.Zero,
			LastReset: time.Now().UTC(),
		}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&state).Error; err != nil {
			logger.WithFields(map[string]interface{}{
				"repo": "RiskRepository",
				"op":   "GetState",
			}).WithError(err).Error("Failed to seed risk state")

			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"repo": "RiskRepository",
			"op":   "GetState",
		}).Info("Risk state initialized")
	}

	return &state, nil
}

// UpdateState applies fn to the current state inside a transaction, holding a
// row lock where supported, and bumps the optimistic version token. fn may
// mutate the state in place.
func (r *RiskRepository) UpdateState(
	ctx context.Context,
	fn func(state *model.RiskState) error,
) (*model.RiskState, error) {

	var state model.RiskState

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockedTx(tx).
			Where("id = ?", model.RiskStateID).
			First(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			state = model.RiskState{
				ID:        model.RiskStateID,
				DailyPnL:  decimal.Zero,
				LastReset: time.Now().UTC(),
			}
			if err := tx.Create(&state).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := fn(&state); err != nil {
			return err
		}

		state.Version++
		return tx.Save(&state).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "RiskRepository",
			"op":   "UpdateState",
		}).WithError(err).Error("Failed to update risk state")

		return nil, err
	}

	return &state, nil
}

// GetTradeStamp returns the last trade time for the symbol, or nil when the
// symbol has never been traded.
func (r *RiskRepository) GetTradeStamp(
	ctx context.Context,
	symbol string,
) (*model.TradeStamp, error) {

	var stamp model.TradeStamp

	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&stamp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "RiskRepository",
			"op":     "GetTradeStamp",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch trade stamp")

		return nil, err
	}

	return &stamp, nil
}

// SetTradeStamp records now as the symbol's last-trade timestamp.
func (r *RiskRepository) SetTradeStamp(
	ctx context.Context,
	symbol string,
	at time.Time,
) error {

	stamp := model.TradeStamp{Symbol: symbol, LastTradeAt: at}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_trade_at", "updated_at"}),
		}).
		Create(&stamp).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RiskRepository",
			"op":     "SetTradeStamp",
			"symbol": symbol,
		}).WithError(err).Error("Failed to set trade stamp")

		return err
	}

	return nil
}
