package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// Hashing 本地特征哈希向量化，无外部调用，用于离线运行与测试
type Hashing struct {
	dimensions int
	maxChars   int
}

var _ embedding.Embedder = (*Hashing)(nil)

// NewHashing 创建哈希向量化器
func NewHashing(dimensions, maxChars int) *Hashing {
	if dimensions <= 0 {
		dimensions = 256
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Hashing{dimensions: dimensions, maxChars: maxChars}
}

func (h *Hashing) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = h.vector(Truncate(t, h.maxChars))
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float64 {
	vec := make([]float64, h.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		sign := 1.0
		if sum&1 == 1 {
			sign = -1
		}
		vec[(sum>>1)%uint64(h.dimensions)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
