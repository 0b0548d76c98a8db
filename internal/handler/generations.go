package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"VocalForge/internal/models"
	"VocalForge/internal/studio"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/response"

	"github.com/gin-gonic/gin"
)

type composeForm struct {
	Prompt   string `json:"prompt" form:"prompt"`
	Duration int    `json:"duration" form:"duration"`
	ModelID  string `json:"modelId" form:"modelId"`
}

// multipart 表单额外预留的字段空间
const formOverhead = 1 << 20

// handleCompose 接受 JSON 或带 beat 文件的 multipart 表单
func (h *Handlers) handleCompose(c *gin.Context) {
	sess := models.MustSession(c)
	var (
		form composeForm
		beat *studio.Beat
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.studio.BeatLimit()+formOverhead)
		if err := c.ShouldBind(&form); err != nil {
			response.Error(c, bindError(err))
			return
		}
		fh, err := c.FormFile("beat")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				response.Error(c, apperrors.ErrBadRequest.Because(err))
				return
			}
			defer f.Close()
			beat = &studio.Beat{
				Filename:    fh.Filename,
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			response.Error(c, bindError(err))
			return
		}
	} else if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, apperrors.ErrBadRequest.Because(err))
		return
	}

	g, err := h.studio.Compose(c.Request.Context(), sess, studio.ComposeInput{
		Prompt:   form.Prompt,
		Duration: form.Duration,
		ModelID:  form.ModelID,
		Beat:     beat,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "generation submitted", g)
}

func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.ErrBeatTooLarge
	}
	return apperrors.ErrBadRequest.Because(err)
}

func (h *Handlers) handleListGenerations(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.Error(c, apperrors.ErrBadRequest)
			return
		}
		limit = n
	}
	list, err := h.studio.ListGenerations(c.Request.Context(), models.MustSession(c), c.Query("q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.Generation{}
	}
	response.Success(c, "ok", list)
}

func (h *Handlers) handleGetGeneration(c *gin.Context) {
	g, err := h.studio.GetGeneration(c.Request.Context(), models.MustSession(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", g)
}

func (h *Handlers) handleDeleteGeneration(c *gin.Context) {
	g, err := h.studio.DeleteGeneration(c.Request.Context(), models.MustSession(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "generation deleted", gin.H{"id": g.ID})
}
