package model

import "time"

// Audit event names emitted by the pipeline.
const (
	AuditEventExecuted     = "executed"
	AuditEventFailed       = "failed"
	AuditEventRejected     = "rejected"
	AuditEventPositionExit = "position_exit"
	AuditEventQueued       = "queued"
)

// AuditLog is an append-only trail of order lifecycle events. Entries are
// never mutated or deleted.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"index;size:64" json:"order_id"`
	Event     string    `gorm:"size:32;not null" json:"event"`
	Meta      string    `gorm:"type:text" json:"meta"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
