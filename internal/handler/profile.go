package handlers

import (
	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
)

type profileForm struct {
	FullName  *string `json:"fullName" binding:"omitempty,max=128"`
	AvatarURL *string `json:"avatarUrl" binding:"omitempty,max=1024"`
}

func (h *Handlers) handleGetProfile(c *gin.Context) {
	sess := models.MustSession(c)
	p, err := h.studio.Profile(c.Request.Context(), sess.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", p)
}

func (h *Handlers) handleUpdateProfile(c *gin.Context) {
	var form profileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, apperrors.ErrBadRequest.Because(err))
		return
	}
	sess := models.MustSession(c)
	p, err := h.studio.UpdateProfile(c.Request.Context(), sess.UserID, form.FullName, form.AvatarURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "profile updated", p)
}

func (h *Handlers) handleDashboard(c *gin.Context) {
	d, err := h.studio.Dashboard(c.Request.Context(), models.MustSession(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", d)
}
