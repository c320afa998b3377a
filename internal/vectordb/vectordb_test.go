package vectordb

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{1, 0}, 1},
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 1}, []float64{-1, -1}, -1},
		{[]float64{1, 2}, []float64{1}, 0},
		{[]float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	recs := []Record{
		{ID: "a", Vector: []float64{1, 0, 0}, Metadata: map[string]any{"entity": "Apple Inc", "risk_score": 2.5}},
		{ID: "b", Vector: []float64{0.9, 0.1, 0}, Metadata: map[string]any{"entity": "Goldman Sachs"}},
		{ID: "c", Vector: []float64{0, 1, 0}, Metadata: map[string]any{"entity": "Apple Inc"}},
	}
	for _, r := range recs {
		if err := m.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	if ok, _ := m.Exists(ctx, "a"); !ok {
		t.Error("Exists(a) = false")
	}
	if ok, _ := m.Exists(ctx, "zzz"); ok {
		t.Error("Exists(zzz) = true")
	}

	got, err := m.Query(ctx, []float64{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	ids := []string{got[0].ID, got[1].ID}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("Query() ids (-want +got):\n%s", diff)
	}

	filtered, _ := m.Query(ctx, []float64{1, 0, 0}, 10, map[string]string{"entity": "Apple Inc"})
	if len(filtered) != 2 || filtered[0].ID != "a" || filtered[1].ID != "c" {
		t.Errorf("filtered = %+v", filtered)
	}

	stats, _ := m.Stats(ctx)
	if diff := cmp.Diff(Stats{Count: 3, Dimension: 3}, stats); diff != "" {
		t.Errorf("Stats() (-want +got):\n%s", diff)
	}

	// 覆盖写不增加数量
	m.Upsert(ctx, Record{ID: "a", Vector: []float64{0, 0, 1}, Metadata: map[string]any{"entity": "Apple Inc", "v": 2}})
	stats, _ = m.Stats(ctx)
	if stats.Count != 3 {
		t.Errorf("Count after overwrite = %d, want 3", stats.Count)
	}
	rec, err := m.Get(ctx, "a")
	if err != nil || rec.Metadata["v"] != 2 {
		t.Errorf("Get(a) = %+v, %v", rec, err)
	}

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestParseDateFilter(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		expr    string
		want    DateRange
		wantErr bool
	}{
		{expr: "2024-05-01", want: DateRange{From: day(1), To: day(2)}},
		{expr: "2024-05-01..2024-05-07", want: DateRange{From: day(1), To: day(8)}},
		{expr: "..2024-05-07", want: DateRange{To: day(8)}},
		{expr: "2024-05-01..", want: DateRange{From: day(1)}},
		{expr: "last-7d", want: DateRange{From: now.AddDate(0, 0, -7)}},
		{expr: "..", wantErr: true},
		{expr: "2024-05-07..2024-05-01", wantErr: true},
		{expr: "last-7", wantErr: true},
		{expr: "last-0d", wantErr: true},
		{expr: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseDateFilter(tt.expr, now)
			if tt.wantErr {
				if !fault.IsPermanent(err) {
					t.Errorf("ParseDateFilter(%q) error = %v, want permanent", tt.expr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDateFilter(%q) error = %v", tt.expr, err)
			}
			if !got.From.Equal(tt.want.From) || !got.To.Equal(tt.want.To) {
				t.Errorf("ParseDateFilter(%q) = %+v, want %+v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestMatchFilter_PublishedAt(t *testing.T) {
	meta := map[string]any{"entity": "Apple Inc", "published_at": "2024-05-03T18:00:00Z"}
	tests := []struct {
		filter map[string]string
		want   bool
	}{
		{map[string]string{"published_at": "2024-05-03"}, true},
		{map[string]string{"published_at": "2024-05-04"}, false},
		{map[string]string{"published_at": "2024-05-01..2024-05-03", "entity": "Apple Inc"}, true},
		{map[string]string{"published_at": "2024-05-01..2024-05-03", "entity": "Goldman Sachs"}, false},
		{map[string]string{"published_at": "not a date"}, false},
	}
	for _, tt := range tests {
		if got := MatchFilter(meta, tt.filter); got != tt.want {
			t.Errorf("MatchFilter(%v) = %v, want %v", tt.filter, got, tt.want)
		}
	}
	if MatchFilter(map[string]any{"entity": "Apple Inc"}, map[string]string{"published_at": "2024-05-03"}) {
		t.Error("records without published_at must not match a date filter")
	}
}

func TestMemory_Distinct(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, e := range []string{"Goldman Sachs", "Apple Inc", "Apple Inc", ""} {
		m.Upsert(ctx, Record{ID: string(rune('a' + i)), Vector: []float64{1}, Metadata: map[string]any{"entity": e}})
	}
	got, err := m.Distinct(ctx, "entity")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Apple Inc", "Goldman Sachs"}, got); diff != "" {
		t.Errorf("Distinct() (-want +got):\n%s", diff)
	}
	if err := ValidateKey("entity'; DROP"); !fault.IsPermanent(err) {
		t.Errorf("ValidateKey() error = %v, want permanent", err)
	}
}
