package response

import (
	"net/http"

	"VocalForge/pkg/constants"
	apperrors "VocalForge/pkg/errors"
	"VocalForge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body 统一响应结构
type Body struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Translator 由 i18n 包实现，避免 response 依赖具体实现
type Translator interface {
	T(lang, key string, data map[string]interface{}) string
}

func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Code: http.StatusOK, Msg: msg, Data: data})
}

func Created(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusCreated, Body{Code: http.StatusCreated, Msg: msg, Data: data})
}

// Fail 参数错误类响应
func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: http.StatusBadRequest, Msg: msg, Data: data})
}

// Error 根据错误码输出响应，消息按请求语言翻译
func Error(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	if code == 0 {
		code = http.StatusInternalServerError
	}
	msg := apperrors.GetMessage(err)
	if key := apperrors.GetKey(err); key != "" {
		msg = translate(c, key, msg)
	}
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", code),
			zap.Error(err),
		)
		if apperrors.GetKey(err) == "" {
			msg = translate(c, apperrors.ErrWriteFailed.Key, apperrors.ErrWriteFailed.Message)
		}
	}
	c.AbortWithStatusJSON(code, Body{Code: code, Msg: msg})
}

func translate(c *gin.Context, key, fallback string) string {
	v, ok := c.Get(constants.I18nField)
	if !ok {
		return fallback
	}
	tr, ok := v.(Translator)
	if !ok {
		return fallback
	}
	lang := c.GetString(constants.LangField)
	if lang == "" {
		lang = constants.DefaultLang
	}
	if s := tr.T(lang, key, nil); s != "" && s != key {
		return s
	}
	return fallback
}
