package sentiment

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	dm "github.com/iWorld-y/risk_radar/internal/model"
)

// fakeChatModel 返回固定内容的模拟大模型
type fakeChatModel struct {
	content string
	err     error
	delay   time.Duration
	calls   atomic.Int32
	lastLen atomic.Int64
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls.Add(1)
	f.lastLen.Store(int64(len([]rune(input[len(input)-1].Content))))
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.content}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestLexicon_Analyze(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		score    float64
		category dm.SentimentCategory
		pos, neg int
	}{
		{"three positive one negative", "Strong growth and record profit despite one loss.", 0.5, dm.Positive, 3, 1},
		{"no matches", "The meeting is on Tuesday.", 0, dm.Neutral, 0, 0},
		{"negative", "Crash and panic; bankruptcy fears despite a gain.", -0.5, dm.Negative, 1, 3},
		{"balanced", "gain loss", 0, dm.Neutral, 1, 1},
		{"whole words only", "Proffitability and growthy shortfalls", 0, dm.Neutral, 0, 0},
		{"empty", "", 0, dm.Neutral, 0, 0},
		{"rounded", "gain gain loss loss loss loss", -0.333, dm.Negative, 2, 4},
		{"possessives", "Apple's profit's surge beat forecasts despite the market's risk's", 0.5, dm.Positive, 3, 1},
		{"curly apostrophe", "the bank’s losses and the firm’s crisis", -1, dm.Negative, 0, 2},
	}

	l := NewLexicon()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Analyze(tt.text)
			if got.Score != tt.score || got.Category != tt.category {
				t.Errorf("Analyze() = %v %s, want %v %s", got.Score, got.Category, tt.score, tt.category)
			}
			if got.PositiveCount != tt.pos || got.NegativeCount != tt.neg {
				t.Errorf("counts = %d/%d, want %d/%d", got.PositiveCount, got.NegativeCount, tt.pos, tt.neg)
			}
			if got.Score < -1 || got.Score > 1 {
				t.Errorf("score %v out of range", got.Score)
			}
		})
	}
}

func TestLLM_Score(t *testing.T) {
	text := "Apple posts strong growth and profit, but one loss weighs."

	t.Run("valid response", func(t *testing.T) {
		cm := &fakeChatModel{content: "```json\n{\"score\": 0.7, \"confidence\": 0.9, \"justification\": \"solid results\"}\n```"}
		got := NewLLM(cm).Score(context.Background(), text)
		if got.Fallback || got.Method != dm.MethodLLM {
			t.Fatalf("unexpected fallback: %+v", got)
		}
		if got.Score != 0.7 || got.Category != dm.Positive || got.Confidence != 0.9 || got.Justification != "solid results" {
			t.Errorf("Score() = %+v", got.Sentiment)
		}
	})

	t.Run("invalid json falls back to lexicon", func(t *testing.T) {
		cm := &fakeChatModel{content: "I think it's pretty positive!"}
		got := NewLLM(cm).Score(context.Background(), text)
		want := NewLexicon().Analyze(text)
		if !got.Fallback || got.Method != dm.MethodLexicon {
			t.Fatalf("Score() = %+v, want lexicon fallback", got.Sentiment)
		}
		if got.Score != want.Score || got.Category != want.Category {
			t.Errorf("fallback score = %v, want %v", got.Score, want.Score)
		}
		if !strings.Contains(got.Justification, "llm fallback") {
			t.Errorf("Justification = %q", got.Justification)
		}
	})

	t.Run("model error falls back", func(t *testing.T) {
		cm := &fakeChatModel{err: errors.New("401 unauthorized")}
		if got := NewLLM(cm).Score(context.Background(), text); !got.Fallback {
			t.Errorf("Score() = %+v, want fallback", got.Sentiment)
		}
	})

	t.Run("no model configured falls back", func(t *testing.T) {
		if got := NewLLM(nil).Score(context.Background(), text); !got.Fallback {
			t.Errorf("Score() = %+v, want fallback", got.Sentiment)
		}
	})

	t.Run("timeout falls back", func(t *testing.T) {
		cm := &fakeChatModel{content: `{"score": 1}`, delay: time.Second}
		start := time.Now()
		got := NewLLM(cm, WithCallTimeout(20*time.Millisecond)).Score(context.Background(), text)
		if !got.Fallback {
			t.Errorf("Score() = %+v, want fallback", got.Sentiment)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Errorf("call timeout not enforced")
		}
	})

	t.Run("out of range values clamped", func(t *testing.T) {
		cm := &fakeChatModel{content: `{"score": -3.5, "confidence": 7}`}
		got := NewLLM(cm).Score(context.Background(), text)
		if got.Score != -1 || got.Confidence != 1 || got.Category != dm.Negative {
			t.Errorf("Score() = %+v", got.Sentiment)
		}
	})

	t.Run("input truncated", func(t *testing.T) {
		cm := &fakeChatModel{content: `{"score": 0}`}
		NewLLM(cm, WithMaxChars(100)).Score(context.Background(), strings.Repeat("x", 10000))
		if got := cm.lastLen.Load(); got != int64(len([]rune(userPrompt))+100) {
			t.Errorf("prompt length = %d, want %d", got, len([]rune(userPrompt))+100)
		}
	})
}

func TestDual_Score(t *testing.T) {
	text := "Strong growth and record profit despite one loss."
	cm := &fakeChatModel{content: `{"score": -0.2, "confidence": 0.6, "justification": "cautious"}`}
	got := NewDual(NewLLM(cm)).Score(context.Background(), text)

	if got.Method != dm.MethodLLM || got.Score != -0.2 {
		t.Errorf("primary = %+v", got.Sentiment)
	}
	if got.Secondary == nil || got.Secondary.Method != dm.MethodLexicon || got.Secondary.Score != 0.5 {
		t.Errorf("secondary = %+v", got.Secondary)
	}
}

func TestNew(t *testing.T) {
	for _, m := range []string{"lexicon", "LLM", "dual", ""} {
		if _, err := New(m, nil); err != nil {
			t.Errorf("New(%q) error = %v", m, err)
		}
	}
	if _, err := New("magic", nil); err == nil {
		t.Error("New(magic) error = nil")
	}
}
