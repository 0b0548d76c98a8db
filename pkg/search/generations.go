package search

import (
	"context"
	"strings"
	"time"
)

// GenerationDoc 生成记录在索引中的字段
type GenerationDoc struct {
	ID        string
	UserID    string
	Title     string
	ModelName string
	Status    string
	CreatedAt time.Time
}

// GenerationIndex 按用户隔离的生成记录检索
type GenerationIndex struct {
	engine Engine
}

func NewGenerationIndex(engine Engine) *GenerationIndex {
	return &GenerationIndex{engine: engine}
}

// Open 创建带生成记录映射的索引
func Open(cfg Config) (*GenerationIndex, error) {
	e, err := New(cfg, BuildIndexMapping())
	if err != nil {
		return nil, err
	}
	return NewGenerationIndex(e), nil
}

func (d GenerationDoc) doc() Doc {
	return Doc{
		ID:   d.ID,
		Type: TypeGeneration,
		Fields: map[string]any{
			"userId":    d.UserID,
			"title":     d.Title,
			"modelName": d.ModelName,
			"titleKey":  strings.ToLower(d.Title),
			"modelKey":  strings.ToLower(d.ModelName),
			"status":    d.Status,
			"createdAt": d.CreatedAt,
		},
	}
}

func (g *GenerationIndex) Put(ctx context.Context, d GenerationDoc) error {
	return g.engine.Index(ctx, d.doc())
}

// Rebuild 批量写入，启动时同步数据库内容
func (g *GenerationIndex) Rebuild(ctx context.Context, docs []GenerationDoc) error {
	batch := make([]Doc, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, d.doc())
	}
	return g.engine.IndexBatch(ctx, batch)
}

func (g *GenerationIndex) Remove(ctx context.Context, id string) error {
	return g.engine.Delete(ctx, id)
}

// Find 返回标题或模型名包含 keyword（不区分大小写）的记录 id，按创建时间倒序。
// keyword 中的 * 与 ? 按通配符处理，结果可能多于子串匹配，调用方需再过滤。
func (g *GenerationIndex) Find(ctx context.Context, userID, keyword string, limit int) ([]string, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if limit <= 0 {
		limit = 50
	}
	req := SearchRequest{
		MustTerms: map[string][]string{"userId": {userID}},
		SortBy:    []string{"-createdAt", "-_score"},
		Size:      limit,
	}
	if keyword != "" {
		pattern := "*" + keyword + "*"
		req.Wildcards = []ClauseWildcard{
			{Field: "titleKey", Pattern: pattern},
			{Field: "modelKey", Pattern: pattern},
		}
		req.MinShould = 1
	}
	res, err := g.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (g *GenerationIndex) Close() error {
	return g.engine.Close()
}
