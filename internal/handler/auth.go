package handlers

import (
	"VocalForge/internal/models"
	"VocalForge/pkg/constants"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
)

type signupForm struct {
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	FullName string `json:"fullName" binding:"max=128"`
}

type signinForm struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleUserSignup(c *gin.Context) {
	var form signupForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, apperrors.ErrBadRequest.Because(err))
		return
	}
	user, profile, err := h.studio.Register(c.Request.Context(), form.Email, form.Password, form.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := models.Login(c, user); err != nil {
		response.Error(c, err)
		return
	}
	name := profile.FullName
	if name == "" {
		name = user.Email
	}
	response.Created(c, h.translate(c, "welcome", map[string]interface{}{"Name": name}, "welcome"), gin.H{
		"user":    user,
		"profile": profile,
	})
}

func (h *Handlers) handleUserSignin(c *gin.Context) {
	var form signinForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, apperrors.ErrBadRequest.Because(err))
		return
	}
	user, err := h.studio.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := models.Login(c, user); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "login success", user)
}

func (h *Handlers) handleUserLogout(c *gin.Context) {
	if err := models.Logout(c); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "logout success", nil)
}

func (h *Handlers) handleUserInfo(c *gin.Context) {
	sess := models.MustSession(c)
	user, err := models.GetUserByID(h.db.WithContext(c.Request.Context()), sess.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	profile, err := h.studio.Profile(c.Request.Context(), sess.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", gin.H{"user": user, "profile": profile})
}

// translate 未启用多语言时返回 fallback
func (h *Handlers) translate(c *gin.Context, key string, data map[string]interface{}, fallback string) string {
	if h.i18n == nil {
		return fallback
	}
	lang := c.GetString(constants.LangField)
	if lang == "" {
		lang = constants.DefaultLang
	}
	if s := h.i18n.T(lang, key, data); s != key {
		return s
	}
	return fallback
}
