package models

import (
	"time"

	apperrors "VocalForge/pkg/errors"

	"gorm.io/gorm"
)

type SubscriptionTier string

const (
	TierStarter SubscriptionTier = "Starter"
	TierPro     SubscriptionTier = "Pro"
	TierStudio  SubscriptionTier = "Studio"
)

// Profile 用户资料与积分余额，ID 与 User.ID 相同
type Profile struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	FullName         string           `gorm:"size:128" json:"fullName"`
	AvatarURL        string           `gorm:"size:1024" json:"avatarUrl"`
	Credits          int              `json:"credits"`
	SubscriptionTier SubscriptionTier `gorm:"size:16" json:"subscriptionTier"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func CreateProfile(db *gorm.DB, userID, fullName string, credits int) (*Profile, error) {
	p := &Profile{
		ID:               userID,
		FullName:         fullName,
		Credits:          credits,
		SubscriptionTier: TierStarter,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func GetProfile(db *gorm.DB, userID string) (*Profile, error) {
	var p Profile
	err := db.Where("id = ?", userID).Take(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile 只更新非 nil 字段，并刷新 updated_at
func UpdateProfile(db *gorm.DB, userID string, fullName, avatarURL *string) (*Profile, error) {
	vals := map[string]any{"updated_at": time.Now().UTC()}
	if fullName != nil {
		vals["full_name"] = *fullName
	}
	if avatarURL != nil {
		vals["avatar_url"] = *avatarURL
	}
	res := db.Model(&Profile{}).Where("id = ?", userID).Updates(vals)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrNotFound
	}
	return GetProfile(db, userID)
}

// DeductCredits 扣减积分，余额不足时不写入。返回扣减后的余额
func DeductCredits(db *gorm.DB, userID string, cost int) (int, error) {
	res := db.Model(&Profile{}).
		Where("id = ? AND credits >= ?", userID, cost).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits - ?", cost),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	p, err := GetProfile(db, userID)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		return p.Credits, apperrors.ErrInsufficientCredits
	}
	return p.Credits, nil
}
