package models

import (
	"strings"
	"time"

	"VocalForge/pkg/constants"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 登录账号
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:128" json:"email"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session 当前请求的登录身份，显式传给各业务操作
type Session struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword bcrypt 哈希
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// CreateUser 创建用户及其 profile
func CreateUser(db *gorm.DB, email, password, fullName string, startingCredits int) (*User, *Profile, error) {
	email = NormalizeEmail(email)
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	user := &User{ID: uuid.NewString(), Email: email, PasswordHash: hash}
	var profile *Profile
	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperrors.ErrEmailTaken
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		p, err := CreateProfile(tx, user.ID, fullName, startingCredits)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var u User
	err := db.Where("email = ?", NormalizeEmail(email)).Take(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByID(db *gorm.DB, id string) (*User, error) {
	var u User
	err := db.Where("id = ?", id).Take(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Authenticate 校验邮箱密码
func Authenticate(db *gorm.DB, email, password string) (*User, error) {
	u, err := GetUserByEmail(db, email)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, apperrors.ErrBadCredentials
	}
	return u, nil
}

// Login 写入 cookie session
func Login(c *gin.Context, u *User) error {
	s := sessions.Default(c)
	s.Set(constants.SessionUserID, u.ID)
	s.Set(constants.SessionEmail, u.Email)
	return s.Save()
}

func Logout(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// CurrentSession 读取当前登录身份
func CurrentSession(c *gin.Context) (*Session, bool) {
	if v, ok := c.Get(constants.SessionField); ok {
		if s, ok := v.(*Session); ok {
			return s, true
		}
	}
	s := sessions.Default(c)
	uid, _ := s.Get(constants.SessionUserID).(string)
	if uid == "" {
		return nil, false
	}
	email, _ := s.Get(constants.SessionEmail).(string)
	sess := &Session{UserID: uid, Email: email}
	c.Set(constants.SessionField, sess)
	return sess, true
}

// MustSession 仅在 AuthRequired 之后调用
func MustSession(c *gin.Context) *Session {
	s, _ := CurrentSession(c)
	return s
}

// AuthRequired 未登录时返回 401
func AuthRequired(c *gin.Context) {
	if _, ok := CurrentSession(c); !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	c.Next()
}
