package middleware

import (
	"VocalForge/pkg/constants"
	"VocalForge/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// LanguageMiddleware 按 ?lang= 与 Accept-Language 协商语言，不支持的语言回退到默认语言
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18nSupport.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(constants.LangField, lang)
		c.Set(constants.I18nField, i18nSupport)
		c.Next()
	}
}
