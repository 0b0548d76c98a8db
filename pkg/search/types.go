package search

import "time"

type Config struct {
	// 为空时使用内存索引
	IndexPath    string
	QueryTimeout time.Duration
	BatchSize    int
}

type Doc struct {
	ID     string
	Type   string
	Fields map[string]any
}

type ClauseMatch struct {
	Field    string
	Query    string
	Boost    *float64
	Operator string // "and"/"or"，默认 or
}

type ClausePrefix struct {
	Field  string
	Prefix string
	Boost  *float64
}

// ClauseWildcard 支持 * 与 ? 的通配匹配
type ClauseWildcard struct {
	Field   string
	Pattern string
	Boost   *float64
}

type SearchRequest struct {
	// 结构化 Term 过滤
	MustTerms map[string][]string

	Matches   []ClauseMatch
	Prefixes  []ClausePrefix
	Wildcards []ClauseWildcard

	// 至少满足多少个 should 子句
	MinShould int

	SortBy []string
	From   int
	Size   int

	IncludeFields []string
}

type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

type SearchResult struct {
	Total uint64
	Took  time.Duration
	Hits  []Hit
}
