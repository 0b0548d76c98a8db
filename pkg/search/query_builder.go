package search

import (
	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

func buildQuery(req SearchRequest) q.Query {
	var must, should []q.Query

	// Term 等值过滤
	for f, vs := range req.MustTerms {
		if len(vs) == 1 {
			tq := bleve.NewTermQuery(vs[0])
			tq.SetField(f)
			must = append(must, tq)
		} else if len(vs) > 1 {
			qs := make([]q.Query, 0, len(vs))
			for _, v := range vs {
				tq := bleve.NewTermQuery(v)
				tq.SetField(f)
				qs = append(qs, tq)
			}
			must = append(must, bleve.NewDisjunctionQuery(qs...))
		}
	}

	for _, m := range req.Matches {
		mq := bleve.NewMatchQuery(m.Query)
		if m.Field != "" {
			mq.SetField(m.Field)
		}
		if m.Boost != nil {
			mq.SetBoost(*m.Boost)
		}
		if m.Operator == "and" {
			mq.SetOperator(q.MatchQueryOperatorAnd)
		}
		should = append(should, mq)
	}
	for _, pr := range req.Prefixes {
		pq := bleve.NewPrefixQuery(pr.Prefix)
		if pr.Field != "" {
			pq.SetField(pr.Field)
		}
		if pr.Boost != nil {
			pq.SetBoost(*pr.Boost)
		}
		should = append(should, pq)
	}

	for _, w := range req.Wildcards {
		wq := bleve.NewWildcardQuery(w.Pattern)
		if w.Field != "" {
			wq.SetField(w.Field)
		}
		if w.Boost != nil {
			wq.SetBoost(*w.Boost)
		}
		should = append(should, wq)
	}

	boolQ := bleve.NewBooleanQuery()
	if len(must) > 0 {
		boolQ.AddMust(must...)
	}
	if len(should) > 0 {
		if req.MinShould > 0 {
			// 至少命中 N 个 should，作为 MUST 条件
			disj := bleve.NewDisjunctionQuery(should...)
			disj.SetMin(float64(req.MinShould))
			boolQ.AddMust(disj)
		} else {
			boolQ.AddShould(should...)
		}
	}
	if len(must) == 0 && len(should) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return boolQ
}
