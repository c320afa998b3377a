// Package vectordb 定义向量库后端接口以及与后端无关的相似度计算
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("vector record not found")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable 表名会被拼进 DDL，只允许标识符
func ValidateTable(name string) error {
	if !identifier.MatchString(name) {
		return fault.Fatal(fault.ReasonMissingConfig, "invalid vector table name %q", name)
	}
	return nil
}

// ValidateKey 元数据键会被拼进 JSON 路径，只允许标识符
func ValidateKey(key string) error {
	if !identifier.MatchString(key) {
		return fault.Permanent(fault.ReasonBadRequest, "invalid metadata key %q", key)
	}
	return nil
}

// Record 一条向量记录
type Record struct {
	ID       string
	Vector   []float64
	Metadata map[string]any
}

// Match 查询命中
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Stats 向量库统计
type Stats struct {
	Count     int `json:"total_vector_count"`
	Dimension int `json:"dimension"`
}

// Backend 向量库后端
type Backend interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	// Query 按余弦相似度返回前 topK 条，filter 语义见 MatchFilter
	Query(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]Match, error)
	// Distinct 元数据某个键的全部非空取值，升序
	Distinct(ctx context.Context, key string) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Cosine 余弦相似度，维度不一致或零向量返回 0
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MatchFilter 元数据是否满足全部过滤条件。
// published_at 按 ParseDateFilter 的区间匹配，其余键做精确匹配。
func MatchFilter(meta map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		v, ok := meta[k]
		if !ok {
			return false
		}
		if k == FilterPublishedAt {
			if !matchDate(v, want) {
				return false
			}
			continue
		}
		if fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

// SortedValues 去重、去空后升序
func SortedValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// TopK 对候选记录过滤并按相似度降序取前 k 条
func TopK(candidates []Record, vector []float64, k int, filter map[string]string) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !MatchFilter(c.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Score: Cosine(vector, c.Vector), Metadata: c.Metadata})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
