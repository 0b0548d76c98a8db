package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"VocalForge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// AuditRecord 一次请求的审计信息
type AuditRecord struct {
	UserID    string
	Method    string
	Path      string
	Status    int
	IPAddress string
	Device    string
	Browser   string
	OS        string
	Location  string
	Latency   time.Duration
}

// AuditWriter 审计记录落库
type AuditWriter interface {
	WriteAudit(rec *AuditRecord) error
}

// AuditWriterFunc 适配普通函数
type AuditWriterFunc func(rec *AuditRecord) error

func (f AuditWriterFunc) WriteAudit(rec *AuditRecord) error { return f(rec) }

type AuditConfig struct {
	// GeoIPPath 为空时不解析地理位置
	GeoIPPath string
	// UserID 提取当前用户，返回空串表示匿名
	UserID func(c *gin.Context) string
	// Methods 需要记录的方法，默认记录所有写操作
	Methods []string
}

// Auditor 记录写操作，GeoIP 数据库只打开一次
type Auditor struct {
	cfg     AuditConfig
	writer  AuditWriter
	geo     *geoip2.Reader
	methods map[string]bool
}

func NewAuditor(cfg AuditConfig, writer AuditWriter) *Auditor {
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}
	a := &Auditor{cfg: cfg, writer: writer, methods: map[string]bool{}}
	for _, m := range cfg.Methods {
		a.methods[strings.ToUpper(m)] = true
	}
	if cfg.GeoIPPath != "" {
		reader, err := geoip2.Open(cfg.GeoIPPath)
		if err != nil {
			logger.Warn("geoip database unavailable, locations disabled", zap.String("path", cfg.GeoIPPath), zap.Error(err))
		} else {
			a.geo = reader
		}
	}
	return a
}

// Close 释放 GeoIP 数据库
func (a *Auditor) Close() error {
	if a.geo != nil {
		return a.geo.Close()
	}
	return nil
}

// Middleware 在处理完成后记录，不影响响应
func (a *Auditor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.methods[c.Request.Method] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		ua := user_agent.New(c.GetHeader("User-Agent"))
		browser, version := ua.Browser()
		if version != "" {
			browser += " " + version
		}
		device := ua.Platform()
		if ua.Mobile() {
			device = "mobile " + device
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ip := clientIPFromRequest(c)
		rec := &AuditRecord{
			Method:    c.Request.Method,
			Path:      path,
			Status:    c.Writer.Status(),
			IPAddress: ip,
			Device:    device,
			Browser:   browser,
			OS:        ua.OS(),
			Location:  a.locate(ip),
			Latency:   time.Since(start),
		}
		if a.cfg.UserID != nil {
			rec.UserID = a.cfg.UserID(c)
		}
		if err := a.writer.WriteAudit(rec); err != nil {
			logger.Warn("write audit log failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func (a *Auditor) locate(ip string) string {
	if a.geo == nil {
		return ""
	}
	pip := net.ParseIP(ip)
	if pip == nil {
		return ""
	}
	record, err := a.geo.City(pip)
	if err != nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if city := record.City.Names["en"]; city != "" {
		parts = append(parts, city)
	}
	if country := record.Country.Names["en"]; country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}
