package sentiment

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Dual 并行执行 LLM 与词典打分，主结果取 LLM（或其降级结果），词典结果附在 Secondary
type Dual struct {
	llm     *LLM
	lexicon *Lexicon
}

// NewDual 创建 dual 打分器
func NewDual(llm *LLM) *Dual {
	return &Dual{llm: llm, lexicon: NewLexicon()}
}

// Score 实现 Scorer
func (d *Dual) Score(ctx context.Context, text string) Result {
	var primary, secondary Result
	var g errgroup.Group
	g.Go(func() error {
		primary = d.llm.Score(ctx, text)
		return nil
	})
	g.Go(func() error {
		secondary = d.lexicon.Score(ctx, text)
		return nil
	})
	_ = g.Wait()

	lex := secondary.Sentiment
	primary.Secondary = &lex
	return primary
}

// New 按名称构造策略：lexicon / llm / dual
func New(method string, llm *LLM) (Scorer, error) {
	switch strings.ToLower(method) {
	case "", "lexicon":
		return NewLexicon(), nil
	case "llm":
		if llm == nil {
			llm = NewLLM(nil)
		}
		return llm, nil
	case "dual":
		if llm == nil {
			llm = NewLLM(nil)
		}
		return NewDual(llm), nil
	default:
		return nil, fmt.Errorf("unknown sentiment method: %s", method)
	}
}
