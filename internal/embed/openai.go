// Package embed 文本向量化，实现 eino 的 embedding.Embedder
package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	einoopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	goopenai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

const defaultMaxChars = 8000

// OpenAIConfig OpenAI 兼容向量化服务配置
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	MaxChars   int
	HTTPClient *http.Client
}

// OpenAI 在 eino-ext 的 OpenAI Embedder 之上做输入截断与错误归类
type OpenAI struct {
	inner    embedding.Embedder
	apiKey   string
	maxChars int
}

var _ embedding.Embedder = (*OpenAI)(nil)

// NewOpenAI 创建向量化客户端
func NewOpenAI(ctx context.Context, cfg OpenAIConfig) (*OpenAI, error) {
	ec := &einoopenai.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		ec.Dimensions = &dims
	}
	inner, err := einoopenai.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}

	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &OpenAI{inner: inner, apiKey: cfg.APIKey, maxChars: maxChars}, nil
}

// EmbedStrings 批量向量化，输入先按 maxChars 截断
func (o *OpenAI) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if o.apiKey == "" {
		return nil, fault.Fatal(fault.ReasonMissingConfig, "embedding api key is empty")
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = Truncate(t, o.maxChars)
	}
	vecs, err := o.inner.EmbedStrings(ctx, input, opts...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(vecs) != len(texts) {
		return nil, fault.Permanent(fault.ReasonMalformed, "embedding count mismatch: got %d, want %d", len(vecs), len(texts))
	}
	return vecs, nil
}

// classify 把 go-openai 的错误映射到 fault 分类
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fault.FromStatus(apiErr.HTTPStatusCode, "embedding", apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fault.FromStatus(reqErr.HTTPStatusCode, "embedding", string(reqErr.Body))
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fault.Permanent(fault.ReasonMalformed, "decode embedding response: %v", err)
	}
	return fault.Transient(fault.ReasonUpstream, "embedding request failed: %v", err)
}

// Truncate 按字符截断
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Embed 单条文本向量化
func Embed(ctx context.Context, e embedding.Embedder, text string) ([]float64, error) {
	vecs, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}
