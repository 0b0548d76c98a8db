package metrics

import (
	"time"

	"VocalForge/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const startKey = "vocalforge:query_start"

// GormPlugin 统计每条 SQL 的耗时，超过阈值时记录慢查询日志
type GormPlugin struct {
	metrics *Metrics
	slow    time.Duration
}

func NewGormPlugin(m *Metrics, slow time.Duration) *GormPlugin {
	return &GormPlugin{metrics: m, slow: slow}
}

func (p *GormPlugin) Name() string { return "vocalforge:metrics" }

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type reg struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}
	regs := []reg{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, r := range regs {
		if err := r.before("metrics:before_"+r.op, p.before); err != nil {
			return err
		}
		if err := r.after("metrics:after_"+r.op, p.after(r.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormPlugin) before(db *gorm.DB) {
	db.InstanceSet(startKey, time.Now())
}

func (p *GormPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		d := time.Since(start)
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		p.metrics.RecordDBQuery(op, table, d)
		if p.slow > 0 && d >= p.slow {
			logger.Warn("slow query",
				zap.String("table", table),
				zap.String("operation", op),
				zap.Duration("duration", d),
				zap.String("sql", db.Statement.SQL.String()),
			)
		}
	}
}
