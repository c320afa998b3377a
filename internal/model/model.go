// Package model 定义流水线各阶段之间传递的数据结构
package model

import (
	"strings"
	"time"
)

// Query 单个实体的检索请求，一次运行内不可变
type Query struct {
	EntityID   string
	SearchTerm string
}

// SearchResult 搜索服务返回的一条结果
type SearchResult struct {
	URL         string
	Title       string
	Source      string
	Snippet     string
	PublishedAt time.Time
}

// Article 抽取成功的文章，以 URL 为自然主键
type Article struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Source      string    `json:"source,omitempty"`
	Entity      string    `json:"entity,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// FullText 标题与正文拼接后的文本，供打分使用
func (a *Article) FullText() string {
	return strings.TrimSpace(a.Title + " " + a.Text)
}

// SentimentCategory 情感类别
type SentimentCategory string

const (
	Positive SentimentCategory = "Positive"
	Neutral  SentimentCategory = "Neutral"
	Negative SentimentCategory = "Negative"
)

// CategoryFor 按阈值将分数映射到类别：>0.1 正面，<-0.1 负面
func CategoryFor(score float64) SentimentCategory {
	switch {
	case score > 0.1:
		return Positive
	case score < -0.1:
		return Negative
	default:
		return Neutral
	}
}

// 打分方法
const (
	MethodLexicon = "lexicon"
	MethodLLM     = "llm"
)

// Sentiment 单一策略的情感打分结果
type Sentiment struct {
	Score         float64           `json:"score"`
	Category      SentimentCategory `json:"category"`
	Confidence    float64           `json:"confidence"`
	Justification string            `json:"justification"`
	Method        string            `json:"method"`
	Fallback      bool              `json:"fallback,omitempty"`
	PositiveCount int               `json:"positive_count,omitempty"`
	NegativeCount int               `json:"negative_count,omitempty"`
}

// RiskCategory 单个风险类别的命中情况
type RiskCategory struct {
	Matches  []string `json:"matches"`
	Severity float64  `json:"severity"`
}

// Correlation 风险与情感的一致性
type Correlation struct {
	Type                string  `json:"type"`
	Alignment           float64 `json:"alignment"`
	NormalizedSentiment float64 `json:"normalized_sentiment"`
}

// Analysis 附着在文章上的分析结果，一次运行内每篇文章只计算一次
type Analysis struct {
	Sentiment      Sentiment               `json:"sentiment"`
	Secondary      *Sentiment              `json:"secondary,omitempty"`
	RiskScore      float64                 `json:"risk_score"`
	RiskCategories map[string]RiskCategory `json:"risk_categories"`
	RiskIndicators []string                `json:"risk_indicators,omitempty"`
	Correlation    Correlation             `json:"correlation"`
}

// Scored 文章与其分析结果
type Scored struct {
	Article  Article  `json:"article"`
	Analysis Analysis `json:"analysis"`
}
