package models

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "VocalForge/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoiceModelStatus string

const (
	VoiceModelTraining  VoiceModelStatus = "Training"
	VoiceModelCompleted VoiceModelStatus = "Completed"
	VoiceModelFailed    VoiceModelStatus = "Failed"
)

const (
	DefaultVoiceQuality  = "Studio Grade"
	DefaultVoiceGradient = "from-accent-cyan to-brand"
	MaxVoiceNameLength   = 64
)

// VoiceModel 用户训练的声音模型，创建后保持 Training
type VoiceModel struct {
	ID            string           `gorm:"primaryKey;size:36" json:"id"`
	UserID        string           `gorm:"size:36;index" json:"userId"`
	Name          string           `gorm:"size:64" json:"name"`
	Quality       string           `gorm:"size:32" json:"quality"`
	Status        VoiceModelStatus `gorm:"size:16" json:"status"`
	ColorGradient string           `gorm:"size:64" json:"colorGradient"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func CreateVoiceModel(db *gorm.DB, userID, name string) (*VoiceModel, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxVoiceNameLength {
		return nil, apperrors.ErrInvalidName
	}
	m := &VoiceModel{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		Quality:       DefaultVoiceQuality,
		Status:        VoiceModelTraining,
		ColorGradient: DefaultVoiceGradient,
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListVoiceModels 按创建时间倒序，q 不区分大小写匹配名称
func ListVoiceModels(db *gorm.DB, userID, q string) ([]VoiceModel, error) {
	tx := db.Where("user_id = ?", userID)
	if q = strings.TrimSpace(q); q != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	var out []VoiceModel
	err := tx.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func GetVoiceModel(db *gorm.DB, userID, id string) (*VoiceModel, error) {
	var m VoiceModel
	err := db.Where("id = ? AND user_id = ?", id, userID).Take(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func CountVoiceModels(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&VoiceModel{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// VoiceModelNames id -> name
func VoiceModelNames(db *gorm.DB, userID string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []VoiceModel
	if err := db.Select("id", "name").Where("user_id = ? AND id IN ?", userID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}
