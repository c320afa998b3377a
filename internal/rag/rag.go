// Package rag 基于向量库的检索增强问答：检索相关文章，拼接上下文后交给大模型作答并标注引用
package rag

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/logger"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

const (
	defaultTopK            = 10
	defaultMaxArticles     = 15
	defaultMaxContextChars = 40000
	minPreviewChars        = 200

	noArticlesAnswer = "No relevant articles found in the vector store for this question."
)

const systemPrompt = `You are a financial risk monitoring assistant. Answer the user's question using only the analyzed news articles provided in the context.
Each article is labelled [REFERENCE n]. Cite the articles you rely on with that exact label, e.g. [REFERENCE 2].
Point out sentiment and risk signals where relevant. If the articles do not contain the answer, say so plainly.`

var referencePattern = regexp.MustCompile(`\[REFERENCE (\d+)\]`)

// Retriever 语义检索
type Retriever interface {
	Search(ctx context.Context, text string, topK int, filter map[string]string) ([]vectordb.Match, error)
}

// Request 一次问答请求
type Request struct {
	Question string `json:"question"`
	// Entity 仅检索该实体的文章
	Entity string `json:"entity,omitempty"`
	// Date 发布日期过滤，语法见 vectordb.ParseDateFilter
	Date string `json:"date,omitempty"`
	TopK int    `json:"top_k,omitempty"`
	// History 之前的对话，拼到检索语句前面
	History string `json:"history,omitempty"`
}

// Citation 回答引用的文章
type Citation struct {
	Ref         int     `json:"ref"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Entity      string  `json:"entity,omitempty"`
	Source      string  `json:"source,omitempty"`
	PublishedAt string  `json:"published_at,omitempty"`
	Score       float64 `json:"score"`
}

// Answer 问答结果
type Answer struct {
	Answer       string            `json:"answer"`
	Citations    []Citation        `json:"citations"`
	ArticlesUsed int               `json:"articles_used"`
	Fallback     bool              `json:"fallback"`
	Filter       map[string]string `json:"filter,omitempty"`
}

// Agent 检索增强问答
type Agent struct {
	retriever       Retriever
	model           model.BaseChatModel
	limiter         *rate.Limiter
	topK            int
	maxArticles     int
	maxContextChars int
	timeout         time.Duration
}

// Option Agent 选项
type Option func(*Agent)

// WithTopK 默认检索条数
func WithTopK(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.topK = n
		}
	}
}

// WithMaxArticles 进入上下文的文章上限
func WithMaxArticles(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxArticles = n
		}
	}
}

// WithMaxContextChars 上下文字符上限，超出时按篇均分截断正文摘要
func WithMaxContextChars(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxContextChars = n
		}
	}
}

// WithLimiter 调用大模型前等待限流器
func WithLimiter(l *rate.Limiter) Option { return func(a *Agent) { a.limiter = l } }

// WithTimeout 单次大模型调用超时
func WithTimeout(d time.Duration) Option { return func(a *Agent) { a.timeout = d } }

// New 创建问答 Agent；cm 为空时只返回检索到的文章列表
func New(retriever Retriever, cm model.BaseChatModel, opts ...Option) *Agent {
	a := &Agent{
		retriever:       retriever,
		model:           cm,
		topK:            defaultTopK,
		maxArticles:     defaultMaxArticles,
		maxContextChars: defaultMaxContextChars,
		timeout:         90 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat 检索并作答。检索失败直接返回错误；大模型不可用或调用失败时降级为文章列表
func (a *Agent) Chat(ctx context.Context, req Request) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fault.Permanent(fault.ReasonBadRequest, "empty question")
	}
	log := logger.Log.WithField("component", "rag")

	query := question
	if h := strings.TrimSpace(req.History); h != "" {
		query = fmt.Sprintf("Context from previous conversation:\n%s\n\nCurrent question: %s", h, question)
	}
	filter := map[string]string{}
	if req.Entity != "" {
		filter["entity"] = req.Entity
	}
	if req.Date != "" {
		filter[vectordb.FilterPublishedAt] = req.Date
	}
	topK := req.TopK
	if topK <= 0 {
		topK = a.topK
	}

	matches, err := a.retriever.Search(ctx, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve articles: %w", err)
	}
	if len(matches) > a.maxArticles {
		matches = matches[:a.maxArticles]
	}
	log.WithField("matches", len(matches)).Infof("问答检索完成: %q", question)

	ans := &Answer{ArticlesUsed: len(matches)}
	if len(filter) > 0 {
		ans.Filter = filter
	}
	if len(matches) == 0 {
		ans.Answer = noArticlesAnswer
		ans.Citations = []Citation{}
		return ans, nil
	}

	content, err := a.generate(ctx, question, BuildContext(matches, a.maxContextChars))
	if err != nil {
		log.Warnf("大模型作答失败，降级为文章列表: %v", err)
		ans.Answer = fallbackAnswer(matches)
		ans.Citations = citations(matches, nil)
		ans.Fallback = true
		return ans, nil
	}
	ans.Answer = content
	ans.Citations = citations(matches, References(content, len(matches)))
	return ans, nil
}

func (a *Agent) generate(ctx context.Context, question, articles string) (string, error) {
	if a.model == nil {
		return "", fmt.Errorf("llm not configured")
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(articles + "\n\n## QUESTION\n" + question),
	}
	resp, err := a.model.Generate(callCtx, messages, model.WithTemperature(0.7), model.WithMaxTokens(3000))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("empty response")
	}
	return resp.Content, nil
}

// BuildContext 把检索结果拼成大模型上下文，每篇文章以 [REFERENCE n] 开头
func BuildContext(matches []vectordb.Match, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## DATASET OVERVIEW\nRelevant articles: %d\n\n", len(matches))

	dist := map[string]int{}
	for _, m := range matches {
		dist[metaString(m.Metadata, "sentiment_category", "Unknown")]++
	}
	cats := make([]string, 0, len(dist))
	for c := range dist {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%s: %d", c, dist[c])
	}
	fmt.Fprintf(&sb, "## SENTIMENT DISTRIBUTION\n%s\n\n## ARTICLES\n", strings.Join(parts, ", "))

	preview := 0
	if maxChars > 0 && len(matches) > 0 {
		preview = max(minPreviewChars, maxChars/len(matches))
	}
	for i, m := range matches {
		md := m.Metadata
		fmt.Fprintf(&sb, "\n### [REFERENCE %d] - %s\n", i+1, metaString(md, "title", "Untitled"))
		fmt.Fprintf(&sb, "- Entity: %s\n", metaString(md, "entity", "Unknown"))
		fmt.Fprintf(&sb, "- Source: %s\n", metaString(md, "source", "Unknown"))
		fmt.Fprintf(&sb, "- Published: %s\n", metaString(md, vectordb.FilterPublishedAt, "Unknown"))
		fmt.Fprintf(&sb, "- URL: %s\n", metaString(md, "url", ""))
		fmt.Fprintf(&sb, "- Sentiment: %s (%s)\n", metaString(md, "sentiment_category", "Unknown"), metaString(md, "sentiment_score", "0"))
		fmt.Fprintf(&sb, "- Risk score: %s\n", metaString(md, "risk_score", "0"))
		if ind := metaString(md, "risk_indicators", ""); ind != "" {
			fmt.Fprintf(&sb, "- Risk indicators: %s\n", ind)
		}
		fmt.Fprintf(&sb, "- Relevance: %.3f\n", m.Score)
		text := metaString(md, "text_preview", "")
		if r := []rune(text); preview > 0 && len(r) > preview {
			text = string(r[:preview]) + "..."
		}
		fmt.Fprintf(&sb, "\n%s\n", text)
	}
	return sb.String()
}

// References 提取回答中引用的 [REFERENCE n] 编号，去重保序，越界编号丢弃
func References(content string, n int) []int {
	var refs []int
	seen := map[int]bool{}
	for _, sub := range referencePattern.FindAllStringSubmatch(content, -1) {
		ref, err := strconv.Atoi(sub[1])
		if err != nil || ref < 1 || ref > n || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// citations refs 为空时引用全部文章
func citations(matches []vectordb.Match, refs []int) []Citation {
	if len(refs) == 0 {
		refs = make([]int, len(matches))
		for i := range matches {
			refs[i] = i + 1
		}
	}
	out := make([]Citation, 0, len(refs))
	for _, ref := range refs {
		m := matches[ref-1]
		out = append(out, Citation{
			Ref:         ref,
			ID:          m.ID,
			Title:       metaString(m.Metadata, "title", ""),
			URL:         metaString(m.Metadata, "url", ""),
			Entity:      metaString(m.Metadata, "entity", ""),
			Source:      metaString(m.Metadata, "source", ""),
			PublishedAt: metaString(m.Metadata, vectordb.FilterPublishedAt, ""),
			Score:       m.Score,
		})
	}
	return out
}

func fallbackAnswer(matches []vectordb.Match) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The language model is unavailable. %d relevant articles were found:\n", len(matches))
	for i, m := range matches {
		md := m.Metadata
		fmt.Fprintf(&sb, "[REFERENCE %d] %s (%s", i+1, metaString(md, "title", "Untitled"), metaString(md, "entity", "Unknown"))
		if day, ok := vectordb.Day(md[vectordb.FilterPublishedAt]); ok {
			fmt.Fprintf(&sb, ", %s", day)
		}
		fmt.Fprintf(&sb, ", sentiment %s, risk %s)", metaString(md, "sentiment_category", "Unknown"), metaString(md, "risk_score", "0"))
		if url := metaString(md, "url", ""); url != "" {
			fmt.Fprintf(&sb, " %s", url)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func metaString(md map[string]any, key, def string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return s
}
