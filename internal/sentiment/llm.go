package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/risk_radar/internal/logger"
	dm "github.com/iWorld-y/risk_radar/internal/model"
)

const systemPrompt = "你是一个 JSON 生成器。请只输出 JSON 字符串。"

const userPrompt = `You are a financial news sentiment analysis assistant. Analyze the sentiment of the following financial news article text.
Return only JSON with the following structure, without markdown:
{
  "score": <number between -1.0 and 1.0>,
  "confidence": <number between 0.0 and 1.0>,
  "justification": "<brief explanation of your sentiment analysis>"
}
Focus on market impact, financial performance indicators, risk and opportunity, and overall market outlook.

Article text:
`

// LLM 委托大模型打分，任何失败都降级为词典结果并标记 Fallback
type LLM struct {
	model    model.BaseChatModel
	limiter  *rate.Limiter
	maxChars int
	timeout  time.Duration
	lexicon  *Lexicon
}

// LLMOption LLM 打分器选项
type LLMOption func(*LLM)

// WithLimiter 调用前等待限流器
func WithLimiter(l *rate.Limiter) LLMOption { return func(s *LLM) { s.limiter = l } }

// WithMaxChars 输入截断长度
func WithMaxChars(n int) LLMOption { return func(s *LLM) { s.maxChars = n } }

// WithCallTimeout 单次调用超时
func WithCallTimeout(d time.Duration) LLMOption { return func(s *LLM) { s.timeout = d } }

// NewLLM 创建 LLM 打分器，cm 为空时所有打分都走词典降级
func NewLLM(cm model.BaseChatModel, opts ...LLMOption) *LLM {
	s := &LLM{model: cm, maxChars: 4000, timeout: 30 * time.Second, lexicon: NewLexicon()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 实现 Scorer
func (s *LLM) Score(ctx context.Context, text string) Result {
	sent, err := s.analyze(ctx, text)
	if err != nil {
		logger.Log.WithField("component", "sentiment").Warnf("LLM 打分失败，降级为词典: %v", err)
		fb := s.lexicon.Analyze(text)
		fb.Fallback = true
		fb.Justification = fmt.Sprintf("llm fallback (%v); %s", err, fb.Justification)
		return Result{Sentiment: fb}
	}
	return Result{Sentiment: sent}
}

func (s *LLM) analyze(ctx context.Context, text string) (dm.Sentiment, error) {
	if s.model == nil {
		return dm.Sentiment{}, fmt.Errorf("llm not configured")
	}
	if strings.TrimSpace(text) == "" {
		return dm.Sentiment{}, fmt.Errorf("empty text")
	}
	if r := []rune(text); s.maxChars > 0 && len(r) > s.maxChars {
		text = string(r[:s.maxChars])
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return dm.Sentiment{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: userPrompt + text},
	}
	resp, err := s.model.Generate(callCtx, messages, model.WithTemperature(0.2), model.WithMaxTokens(300))
	if err != nil {
		return dm.Sentiment{}, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return dm.Sentiment{}, fmt.Errorf("empty response")
	}
	return parseResponse(resp.Content)
}

type llmResponse struct {
	Score         *float64 `json:"score"`
	Confidence    *float64 `json:"confidence"`
	Justification string   `json:"justification"`
}

// parseResponse 去掉代码块标记后解析第一个 JSON 对象
func parseResponse(content string) (dm.Sentiment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return dm.Sentiment{}, fmt.Errorf("malformed response: no json object")
	}

	var r llmResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return dm.Sentiment{}, fmt.Errorf("malformed response: %w", err)
	}
	if r.Score == nil {
		return dm.Sentiment{}, fmt.Errorf("malformed response: missing score")
	}

	score := round3(clamp(*r.Score, -1, 1))
	confidence := 0.5
	if r.Confidence != nil {
		confidence = clamp(*r.Confidence, 0, 1)
	}
	return dm.Sentiment{
		Score:         score,
		Category:      dm.CategoryFor(score),
		Confidence:    confidence,
		Justification: strings.TrimSpace(r.Justification),
		Method:        dm.MethodLLM,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
