// Package sentiment 提供两种可互换的情感打分策略（词典、LLM）及其并行合并模式。
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/iWorld-y/risk_radar/internal/model"
)

// Result 打分结果，Secondary 仅在 dual 模式下存在
type Result struct {
	model.Sentiment
	Secondary *model.Sentiment
}

// Scorer 情感打分策略，任何失败都在内部降级，不向调用方返回错误
type Scorer interface {
	Score(ctx context.Context, text string) Result
}

var positiveWords = toSet(
	"profit", "growth", "revenue", "earnings", "surge", "rally", "bullish", "optimistic",
	"strong", "robust", "healthy", "expansion", "investment", "opportunity", "recovery",
	"bounce", "positive", "gain", "increase", "rise", "climb", "soar", "jump", "leap",
	"success", "achievement", "breakthrough", "innovation", "leadership", "excellence",
	"outperform", "beat", "exceed", "outpace", "accelerate", "boost", "enhance", "improve",
	"strengthen", "solidify", "stabilize", "secure", "confident", "assured", "promising",
	"bright", "upward", "ascending", "prosperous", "thriving", "flourishing", "booming",
)

var negativeWords = toSet(
	"loss", "decline", "drop", "fall", "crash", "bearish", "pessimistic", "weak",
	"poor", "unhealthy", "contraction", "recession", "downturn", "slump", "plunge",
	"negative", "decrease", "reduce", "diminish", "shrink", "contract", "deteriorate",
	"worsen", "fail", "bankruptcy", "default", "crisis", "panic", "fear", "anxiety",
	"uncertainty", "volatility", "risk", "danger", "threat", "concern", "worry",
	"stress", "pressure", "strain", "burden", "liability", "debt", "losses", "deficit",
	"shortfall", "gap", "hole", "weakness", "vulnerability", "exposure", "susceptible",
	"fragile", "unstable", "unreliable", "unpredictable", "chaotic", "turbulent",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Lexicon 基于金融正负面词表的打分策略，无外部调用
type Lexicon struct{}

// NewLexicon 创建词典打分器
func NewLexicon() *Lexicon { return &Lexicon{} }

// Score 实现 Scorer
func (l *Lexicon) Score(_ context.Context, text string) Result {
	return Result{Sentiment: l.Analyze(text)}
}

// Analyze 统计正负面词出现次数：score = (pos - neg) / (pos + neg)，无命中时为 0
func (l *Lexicon) Analyze(text string) model.Sentiment {
	var pos, neg int
	for _, tok := range tokenize(text) {
		if _, ok := positiveWords[tok]; ok {
			pos++
		} else if _, ok := negativeWords[tok]; ok {
			neg++
		}
	}

	var score float64
	if total := pos + neg; total > 0 {
		score = round3(float64(pos-neg) / float64(total))
	}
	return model.Sentiment{
		Score:         score,
		Category:      model.CategoryFor(score),
		Justification: fmt.Sprintf("lexicon: %d positive, %d negative terms", pos, neg),
		Method:        model.MethodLexicon,
		PositiveCount: pos,
		NegativeCount: neg,
	}
}

// tokenize 按非字母切分，所有格 "risk's" 拆成 "risk" 与 "s"
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
