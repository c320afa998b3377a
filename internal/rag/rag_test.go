package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/iWorld-y/risk_radar/internal/fault"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

// fakeChatModel 返回固定内容并记录最后一次输入
type fakeChatModel struct {
	content string
	err     error
	calls   int
	last    []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type fakeRetriever struct {
	matches    []vectordb.Match
	err        error
	lastText   string
	lastTopK   int
	lastFilter map[string]string
}

func (f *fakeRetriever) Search(_ context.Context, text string, topK int, filter map[string]string) ([]vectordb.Match, error) {
	f.lastText, f.lastTopK, f.lastFilter = text, topK, filter
	return f.matches, f.err
}

func testMatches() []vectordb.Match {
	return []vectordb.Match{
		{ID: "a1", Score: 0.91, Metadata: map[string]any{
			"title": "Apple beats estimates", "url": "https://example.com/a1", "entity": "Apple Inc",
			"source": "Reuters", "published_at": "2024-05-03T08:00:00Z", "sentiment_category": "Positive",
			"sentiment_score": 0.6, "risk_score": 1.5, "text_preview": "Apple reported record revenue.",
		}},
		{ID: "g1", Score: 0.72, Metadata: map[string]any{
			"title": "Goldman faces inquiry", "url": "https://example.com/g1", "entity": "Goldman Sachs",
			"source": "Bloomberg", "sentiment_category": "Negative", "risk_score": 7.0,
			"risk_indicators": "regulatory: investigation", "text_preview": "Regulators opened an investigation.",
		}},
	}
}

func TestAgent_Chat(t *testing.T) {
	ctx := context.Background()

	t.Run("answer cites referenced articles", func(t *testing.T) {
		r := &fakeRetriever{matches: testMatches()}
		cm := &fakeChatModel{content: "Goldman carries the highest risk [REFERENCE 2]. See also [REFERENCE 2] and [REFERENCE 9]."}
		ans, err := New(r, cm).Chat(ctx, Request{Question: "Which company is riskiest?", Entity: "Goldman Sachs", Date: "last-7d", TopK: 3})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if ans.Fallback || ans.ArticlesUsed != 2 {
			t.Errorf("Chat() = %+v", ans)
		}
		want := []Citation{{Ref: 2, ID: "g1", Title: "Goldman faces inquiry", URL: "https://example.com/g1", Entity: "Goldman Sachs", Source: "Bloomberg", Score: 0.72}}
		if diff := cmp.Diff(want, ans.Citations); diff != "" {
			t.Errorf("Citations (-want +got):\n%s", diff)
		}
		wantFilter := map[string]string{"entity": "Goldman Sachs", "published_at": "last-7d"}
		if diff := cmp.Diff(wantFilter, r.lastFilter); diff != "" {
			t.Errorf("filter (-want +got):\n%s", diff)
		}
		if r.lastTopK != 3 || r.lastText != "Which company is riskiest?" {
			t.Errorf("Search(%q, %d)", r.lastText, r.lastTopK)
		}
		if len(cm.last) != 2 || cm.last[0].Role != schema.System || !strings.Contains(cm.last[1].Content, "[REFERENCE 2] - Goldman faces inquiry") {
			t.Errorf("messages = %+v", cm.last)
		}
	})

	t.Run("answer without references cites everything", func(t *testing.T) {
		cm := &fakeChatModel{content: "Mixed signals overall."}
		ans, err := New(&fakeRetriever{matches: testMatches()}, cm).Chat(ctx, Request{Question: "Summary?"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if len(ans.Citations) != 2 || ans.Citations[0].Ref != 1 || ans.Filter != nil {
			t.Errorf("Chat() = %+v", ans)
		}
	})

	t.Run("history is prepended to the query", func(t *testing.T) {
		r := &fakeRetriever{}
		if _, err := New(r, nil, WithTopK(4)).Chat(ctx, Request{Question: "And Apple?", History: "user: how is Goldman doing"}); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !strings.HasPrefix(r.lastText, "Context from previous conversation:\nuser: how is Goldman doing") || !strings.HasSuffix(r.lastText, "Current question: And Apple?") {
			t.Errorf("query = %q", r.lastText)
		}
		if r.lastTopK != 4 {
			t.Errorf("topK = %d, want 4", r.lastTopK)
		}
	})

	t.Run("no matches skips the model", func(t *testing.T) {
		cm := &fakeChatModel{content: "unused"}
		ans, err := New(&fakeRetriever{}, cm).Chat(ctx, Request{Question: "Anything on Tesla?"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if cm.calls != 0 || ans.Answer != noArticlesAnswer || ans.ArticlesUsed != 0 || ans.Citations == nil {
			t.Errorf("Chat() = %+v, calls = %d", ans, cm.calls)
		}
	})

	t.Run("model failure falls back to listing", func(t *testing.T) {
		cm := &fakeChatModel{err: errors.New("503 overloaded")}
		ans, err := New(&fakeRetriever{matches: testMatches()}, cm).Chat(ctx, Request{Question: "Risks?"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !ans.Fallback || len(ans.Citations) != 2 {
			t.Fatalf("Chat() = %+v", ans)
		}
		for _, s := range []string{"[REFERENCE 1] Apple beats estimates (Apple Inc, 2024-05-03", "[REFERENCE 2] Goldman faces inquiry (Goldman Sachs, sentiment Negative, risk 7)"} {
			if !strings.Contains(ans.Answer, s) {
				t.Errorf("Answer missing %q:\n%s", s, ans.Answer)
			}
		}
	})

	t.Run("no model falls back", func(t *testing.T) {
		ans, err := New(&fakeRetriever{matches: testMatches()}, nil).Chat(ctx, Request{Question: "Risks?"})
		if err != nil || !ans.Fallback {
			t.Errorf("Chat() = %+v, %v", ans, err)
		}
	})

	t.Run("max articles caps context", func(t *testing.T) {
		cm := &fakeChatModel{content: "ok"}
		ans, err := New(&fakeRetriever{matches: testMatches()}, cm, WithMaxArticles(1)).Chat(ctx, Request{Question: "Risks?"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if ans.ArticlesUsed != 1 || strings.Contains(cm.last[1].Content, "[REFERENCE 2]") {
			t.Errorf("Chat() = %+v", ans)
		}
	})

	t.Run("empty question", func(t *testing.T) {
		if _, err := New(&fakeRetriever{}, nil).Chat(ctx, Request{Question: "  "}); !fault.IsPermanent(err) {
			t.Errorf("Chat() error = %v, want permanent", err)
		}
	})

	t.Run("retrieval error propagates", func(t *testing.T) {
		r := &fakeRetriever{err: fault.Permanent(fault.ReasonBadRequest, "invalid date filter")}
		if _, err := New(r, nil).Chat(ctx, Request{Question: "q", Date: "May"}); !fault.IsPermanent(err) {
			t.Errorf("Chat() error = %v, want permanent", err)
		}
	})
}

func TestBuildContext(t *testing.T) {
	matches := testMatches()
	matches[0].Metadata["text_preview"] = strings.Repeat("x", 1000)

	got := BuildContext(matches, 600)
	for _, s := range []string{
		"Relevant articles: 2",
		"Negative: 1, Positive: 1",
		"### [REFERENCE 1] - Apple beats estimates",
		"- Risk indicators: regulatory: investigation",
		strings.Repeat("x", 300) + "...",
	} {
		if !strings.Contains(got, s) {
			t.Errorf("BuildContext() missing %q", s)
		}
	}
	if strings.Contains(got, strings.Repeat("x", 301)) {
		t.Error("BuildContext() did not truncate long previews")
	}
}

func TestReferences(t *testing.T) {
	got := References("[REFERENCE 3] then [REFERENCE 1], again [REFERENCE 3], bogus [REFERENCE 0] [REFERENCE 7]", 3)
	if diff := cmp.Diff([]int{3, 1}, got); diff != "" {
		t.Errorf("References() (-want +got):\n%s", diff)
	}
}
