// Package risk 基于关键词类别的确定性风险打分，不依赖任何外部调用
package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/iWorld-y/risk_radar/internal/model"
)

// 风险类别
const (
	MarketRisk        = "market_risk"
	EconomicRisk      = "economic_risk"
	GeopoliticalRisk  = "geopolitical_risk"
	SectorRisk        = "sector_risk"
	PositiveSentiment = "positive_sentiment"
)

// Category 一个风险类别及其关键词与权重
type Category struct {
	Name     string
	Weight   float64
	Keywords []string
}

// DefaultCategories 默认类别表，positive_sentiment 为负权重，用于抵消风险分
func DefaultCategories() []Category {
	return []Category{
		{MarketRisk, 1.5, []string{
			"crash", "bear market", "recession", "downturn", "decline", "fall", "drop",
			"volatility", "uncertainty", "risk", "danger", "warning", "concern",
			"sell-off", "correction", "bubble", "burst", "panic", "fear",
		}},
		{EconomicRisk, 1.3, []string{
			"inflation", "deflation", "stagflation", "debt", "default", "bankruptcy",
			"liquidity", "credit", "interest rates", "monetary policy", "fiscal policy",
			"unemployment", "layoffs", "job losses", "economic slowdown",
		}},
		{GeopoliticalRisk, 1.2, []string{
			"war", "conflict", "sanctions", "trade war", "tariffs", "embargo",
			"political instability", "election", "regulatory", "policy change",
			"geopolitical", "international relations", "diplomatic",
		}},
		{SectorRisk, 1.0, []string{
			"tech bubble", "real estate", "housing market", "oil prices", "energy crisis",
			"supply chain", "shortage", "disruption", "cybersecurity", "data breach",
			"regulatory compliance", "legal action", "lawsuit",
		}},
		{PositiveSentiment, -0.5, []string{
			"rally", "bull market", "growth", "profit", "earnings", "revenue", "expansion",
			"investment", "opportunity", "recovery", "bounce", "positive", "optimistic",
			"strong", "robust", "healthy",
		}},
	}
}

// Assessment 单篇文章的风险评估
type Assessment struct {
	Score      float64
	Categories map[string]model.RiskCategory
	Indicators []string
}

// Scorer 关键词风险打分器，构造后只读，可并发使用
type Scorer struct {
	categories []Category
}

// NewScorer 创建打分器，categories 为空时使用默认类别表
func NewScorer(categories []Category) *Scorer {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	return &Scorer{categories: categories}
}

// Score 对标题加正文打分。
// 类别严重度 = min(10, 命中数 × 10 / (文本长度/1000))，
// 总分 = clamp(Σ 严重度 × 权重, 0, 10)；空文本得 0。
func (s *Scorer) Score(title, text string) Assessment {
	full := strings.TrimSpace(title + " " + text)
	out := Assessment{Categories: map[string]model.RiskCategory{}}
	if full == "" {
		return out
	}

	normalized := " " + strings.Join(tokenize(full), " ") + " "
	length := float64(len([]rune(full)))

	var total float64
	for _, c := range s.categories {
		var matches []string
		for _, kw := range c.Keywords {
			if strings.Contains(normalized, " "+strings.ToLower(kw)+" ") {
				matches = append(matches, kw)
			}
		}
		if len(matches) == 0 {
			continue
		}
		severity := math.Min(10, float64(len(matches))*10/(length/1000))
		severity = round2(severity)
		out.Categories[c.Name] = model.RiskCategory{Matches: matches, Severity: severity}
		total += severity * c.Weight

		if c.Weight > 0 {
			shown := matches
			if len(shown) > 3 {
				shown = shown[:3]
			}
			out.Indicators = append(out.Indicators, fmt.Sprintf("%s: %s", c.Name, strings.Join(shown, ", ")))
		}
	}
	sort.Strings(out.Indicators)
	out.Score = round2(math.Max(0, math.Min(10, total)))
	return out
}

// 风险与情感一致性类型
const (
	Aligned                 = "aligned"
	RiskHigherThanSentiment = "risk_higher_than_sentiment"
	SentimentHigherThanRisk = "sentiment_higher_than_risk"
)

// Correlate 把情感分映射到 0-10 后与风险分比较
func Correlate(riskScore, sentimentScore float64) model.Correlation {
	normalized := (sentimentScore + 1) * 5
	diff := math.Abs(riskScore - normalized)

	typ := SentimentHigherThanRisk
	switch {
	case diff < 2:
		typ = Aligned
	case riskScore > normalized+2:
		typ = RiskHigherThanSentiment
	}
	return model.Correlation{
		Type:                typ,
		Alignment:           round2(math.Max(0, 1-diff/10)),
		NormalizedSentiment: round2(normalized),
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
