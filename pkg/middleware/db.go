package middleware

import (
	"VocalForge/pkg/constants"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InjectDB 把数据库连接放入上下文
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(constants.DbField, db)
		c.Next()
	}
}
