package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditLog 写操作审计记录
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"size:36;index" json:"userId"`
	Method    string    `gorm:"size:8" json:"method"`
	Path      string    `gorm:"size:256" json:"path"`
	Status    int       `json:"status"`
	IPAddress string    `gorm:"size:64" json:"ipAddress"`
	Device    string    `gorm:"size:64" json:"device"`
	Browser   string    `gorm:"size:64" json:"browser"`
	OS        string    `gorm:"size:64" json:"os"`
	Location  string    `gorm:"size:128" json:"location"`
	LatencyMs int64     `json:"latencyMs"`
	CreatedAt time.Time `json:"createdAt"`
}

func CreateAuditLog(db *gorm.DB, l *AuditLog) error {
	return db.Create(l).Error
}

// ListAuditLogs userID 为空时返回全部用户的记录
func ListAuditLogs(db *gorm.DB, userID string, limit int) ([]AuditLog, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	tx := db.Order("id DESC").Limit(limit)
	if userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}
	var out []AuditLog
	err := tx.Find(&out).Error
	return out, err
}
