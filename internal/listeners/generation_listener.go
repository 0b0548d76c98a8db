package listeners

import (
	"context"

	"VocalForge/internal/models"
	"VocalForge/pkg/logger"
	"VocalForge/pkg/metrics"
	"VocalForge/pkg/search"
	"VocalForge/pkg/sse"
	"VocalForge/pkg/util"

	"go.uber.org/zap"
)

// GenerationEvent 推送给前端的状态变化
type GenerationEvent struct {
	ID     string                  `json:"id"`
	Status models.GenerationStatus `json:"status"`
	Title  string                  `json:"title,omitempty"`
}

// Targets 监听器的下游，nil 表示跳过
type Targets struct {
	Hub     *sse.Hub
	Index   *search.GenerationIndex
	Metrics *metrics.Metrics
}

func toDoc(g *models.Generation) search.GenerationDoc {
	return search.GenerationDoc{
		ID:        g.ID,
		UserID:    g.UserID,
		Title:     g.Title,
		ModelName: g.ModelName,
		Status:    string(g.Status),
		CreatedAt: g.CreatedAt,
	}
}

// InitGenerationListeners 把生成记录的事件分发到 SSE、检索索引与指标
func InitGenerationListeners(sig *util.Signals, t Targets) {
	sig.Connect(models.SigGenerationCreated, func(sender any, params ...any) {
		g, ok := sender.(*models.Generation)
		if !ok {
			return
		}
		if t.Metrics != nil {
			t.Metrics.RecordGenerationSubmitted(g.BeatKey != "", g.Cost)
		}
		index(t.Index, g)
		push(t.Hub, g, models.SigGenerationCreated)
	})

	sig.Connect(models.SigGenerationCompleted, func(sender any, params ...any) {
		g, ok := sender.(*models.Generation)
		if !ok {
			return
		}
		if t.Metrics != nil {
			t.Metrics.RecordGenerationCompleted()
		}
		index(t.Index, g)
		push(t.Hub, g, models.SigGenerationCompleted)
	})

	sig.Connect(models.SigGenerationDeleted, func(sender any, params ...any) {
		g, ok := sender.(*models.Generation)
		if !ok {
			return
		}
		if t.Metrics != nil {
			t.Metrics.RecordGenerationDeleted(string(g.Status))
		}
		if t.Index != nil {
			if err := t.Index.Remove(context.Background(), g.ID); err != nil {
				logger.Warn("remove generation from index failed", zap.String("generation_id", g.ID), zap.Error(err))
			}
		}
		push(t.Hub, g, models.SigGenerationDeleted)
	})
}

func index(idx *search.GenerationIndex, g *models.Generation) {
	if idx == nil {
		return
	}
	if err := idx.Put(context.Background(), toDoc(g)); err != nil {
		logger.Warn("index generation failed", zap.String("generation_id", g.ID), zap.Error(err))
	}
}

func push(hub *sse.Hub, g *models.Generation, event string) {
	if hub == nil {
		return
	}
	ev := GenerationEvent{ID: g.ID, Status: g.Status, Title: g.Title}
	if err := hub.SendToGroupJSON(sse.UserGroup(g.UserID), event, ev); err != nil {
		logger.Warn("push generation event failed", zap.String("generation_id", g.ID), zap.Error(err))
	}
}

// RebuildIndex 启动时用数据库内容重建索引
func RebuildIndex(ctx context.Context, idx *search.GenerationIndex, gens []models.Generation) error {
	docs := make([]search.GenerationDoc, 0, len(gens))
	for i := range gens {
		docs = append(docs, toDoc(&gens[i]))
	}
	return idx.Rebuild(ctx, docs)
}
