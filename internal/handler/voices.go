package handlers

import (
	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
)

// 当前用户的声音模型，q 按名称过滤
func (h *Handlers) handleListVoiceModels(c *gin.Context) {
	list, err := h.studio.ListVoiceModels(c.Request.Context(), models.MustSession(c), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.VoiceModel{}
	}
	response.Success(c, "ok", list)
}

// 新建声音模型，创建后停留在 Training
func (h *Handlers) handleCreateVoiceModel(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.Because(err))
		return
	}
	vm, err := h.studio.CreateVoiceModel(c.Request.Context(), models.MustSession(c), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "voice model created", vm)
}

func (h *Handlers) handleGetVoiceModel(c *gin.Context) {
	vm, err := h.studio.GetVoiceModel(c.Request.Context(), models.MustSession(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", vm)
}
