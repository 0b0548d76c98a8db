package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const TypeGeneration = "generation"

func BuildIndexMapping() *mapping.IndexMappingImpl {
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = standard.Name
	idx.TypeField = "type"

	// 文本
	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = standard.Name
	text.IncludeInAll = true

	// 关键词
	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name
	kw.IncludeInAll = false

	dt := mapping.NewDateTimeFieldMapping()
	dt.Store = true
	dt.Index = true

	gen := mapping.NewDocumentMapping()
	gen.Dynamic = false
	gen.AddFieldMappingsAt("userId", kw)
	gen.AddFieldMappingsAt("status", kw)
	gen.AddFieldMappingsAt("title", text)
	gen.AddFieldMappingsAt("modelName", text)
	// 小写整串，供子串通配匹配
	gen.AddFieldMappingsAt("titleKey", kw)
	gen.AddFieldMappingsAt("modelKey", kw)
	gen.AddFieldMappingsAt("createdAt", dt)
	idx.AddDocumentMapping(TypeGeneration, gen)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
