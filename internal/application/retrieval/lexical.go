package retrieval

import (
	"context"
	"errors"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// LexicalAdapter 全文检索召回
type LexicalAdapter struct {
	index repository.LexicalIndex
}

// NewLexicalAdapter 创建全文检索召回源
func NewLexicalAdapter(index repository.LexicalIndex) *LexicalAdapter {
	return &LexicalAdapter{index: index}
}

func (a *LexicalAdapter) Source() entity.Source { return entity.SourceLexical }

func (a *LexicalAdapter) Supports(mode entity.Mode) bool { return mode == entity.ModeSearch }

func (a *LexicalAdapter) Retrieve(ctx context.Context, req Request, k int) ([]entity.ScoredID, error) {
	if a.index == nil {
		return nil, Unavailable(entity.SourceLexical, ErrNotConfigured)
	}
	text := req.Text
	if text.Empty() {
		text = entity.PlainTextQuery(NormalizeQuery(req.Query))
	}
	if text.Empty() {
		return nil, InvalidInput(entity.SourceLexical, errors.New("empty query"))
	}

	items, err := a.index.SearchText(ctx, text, k)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Score = clamp01(items[i].Score)
	}
	return items, nil
}
