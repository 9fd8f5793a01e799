package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockbot/src/database"
	"stockbot/src/model"
)

// OrderRepository handles read/write operations for orders and audit logs.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating new OrderRepository with MainDB")

	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NewOrderID returns a fresh unique local order id.
func NewOrderID() string {
	return "ord-" + uuid.NewString()
}

// lockedTx adds a row-level lock on databases that support it. The sqlite
// fallback serializes writers on its own.
func lockedTx(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// ---------------------------------------------------
// Order methods
// ---------------------------------------------------

// Append inserts the order, or replaces the stored record when an order with
// the same id already exists. A missing id is generated.
func (r *OrderRepository) Append(
	ctx context.Context,
	order *model.Order,
) error {

	if order.ID == "" {
		order.ID = NewOrderID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Append",
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     order.Side,
		"qty":      order.Qty,
		"status":   order.Status,
	}).Debug("Appending order")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Append",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to append order")

		return err
	}

	return nil
}

// MergeUpdate loads the order, overlays the given fields and persists the
// result inside a transaction, holding a row lock where the engine supports
// it so concurrent writers cannot silently drop each other's fields.
// Returns the merged record, or (nil, nil) when the order does not exist.
func (r *OrderRepository) MergeUpdate(
	ctx context.Context,
	id string,
	fields map[string]interface{},
) (*model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "MergeUpdate",
		"order_id": id,
	}).Debug("Merge-updating order")

	var merged model.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockedTx(tx).
			Where("id = ?", id).
			First(&merged).Error; err != nil {
			return err
		}

		if len(fields) == 0 {
			return nil
		}

		return tx.Model(&merged).Updates(fields).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":     "OrderRepository",
				"op":       "MergeUpdate",
				"order_id": id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MergeUpdate",
			"order_id": id,
		}).WithError(err).Error("Failed to merge-update order")

		return nil, err
	}

	return &merged, nil
}

// FindByID fetches a single order by id. Returns (nil, nil) when not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindByID",
			"order_id": id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// OrderListOptions are the filters accepted by List.
type OrderListOptions struct {
	Status string
	Symbol string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// List returns orders matching the filters, ordered by creation time
// descending, along with the total match count for pagination.
func (r *OrderRepository) List(
	ctx context.Context,
	options OrderListOptions,
) ([]model.Order, int64, error) {

	if options.Page <= 0 {
		options.Page = 1
	}
	if options.Limit <= 0 {
		options.Limit = 50
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "List",
		"status": options.Status,
		"symbol": options.Symbol,
		"page":   options.Page,
		"limit":  options.Limit,
	}).Debug("Listing orders")

	query := r.db.WithContext(ctx).Model(&model.Order{})
	if options.Status != "" {
		query = query.Where("status = ?", options.Status)
	}
	if options.Symbol != "" {
		query = query.Where("symbol = ?", options.Symbol)
	}
	if options.From != nil {
		query = query.Where("created_at >= ?", *options.From)
	}
	if options.To != nil {
		query = query.Where("created_at <= ?", *options.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to count orders")

		return nil, 0, err
	}

	var orders []model.Order
	err := query.
		Order("created_at DESC").
		Limit(options.Limit).
		Offset((options.Page - 1) * options.Limit).
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to list orders")

		return nil, 0, err
	}

	return orders, total, nil
}

// ---------------------------------------------------
// Audit log methods
// ---------------------------------------------------

// AddAuditLog appends an audit entry for the given order. The meta payload is
// stored as JSON.
func (r *OrderRepository) AddAuditLog(
	ctx context.Context,
	orderID string,
	event string,
	meta map[string]interface{},
) (*model.AuditLog, error) {

	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit meta: %w", err)
	}

	entry := &model.AuditLog{
		OrderID:   orderID,
		Event:     event,
		Meta:      string(payload),
		CreatedAt: time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "AddAuditLog",
			"order_id": orderID,
			"event":    event,
		}).WithError(err).Error("Failed to append audit log")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "AddAuditLog",
		"order_id": orderID,
		"event":    event,
	}).Debug("Audit log appended")

	return entry, nil
}

// ListAuditLogs returns audit entries newest first.
func (r *OrderRepository) ListAuditLogs(
	ctx context.Context,
	page, limit int,
) ([]model.AuditLog, error) {

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}

	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&logs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "ListAuditLogs",
		}).WithError(err).Error("Failed to list audit logs")

		return nil, err
	}

	return logs, nil
}
