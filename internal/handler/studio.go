package handlers

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"VocalForge/internal/models"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"
	"VocalForge/pkg/sse"
	"VocalForge/pkg/stores"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handlers) handleStudioOptions(c *gin.Context) {
	response.Success(c, "ok", h.studio.Options())
}

// handleSuggest 未配置模型时返回预设提示词
func (h *Handlers) handleSuggest(c *gin.Context) {
	response.Success(c, "ok", h.suggester.Suggest(c.Request.Context(), c.Query("hint")))
}

// handleEvents 推送当前用户的生成状态变化
func (h *Handlers) handleEvents(c *gin.Context) {
	sess := models.MustSession(c)
	clientID := sess.UserID + ":" + uuid.NewString()
	h.hub.Serve(c, clientID, sse.UserGroup(sess.UserID))
}

// handleFile 读取伴奏文件，只允许访问自己的目录
func (h *Handlers) handleFile(c *gin.Context) {
	store := h.studio.Store()
	if store == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}
	key, err := stores.CleanKey(strings.TrimPrefix(c.Param("key"), "/"))
	if err != nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}
	sess := models.MustSession(c)
	if !strings.HasPrefix(key, "beats/"+sess.UserID+"/") {
		response.Error(c, apperrors.ErrNotFound)
		return
	}
	rc, size, err := store.Read(c.Request.Context(), key)
	if err != nil {
		response.Error(c, apperrors.ErrNotFound.Because(err))
		return
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, size, ct, rc, nil)
}
