package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/engine"
	"github.com/iWorld-y/risk_radar/internal/model"
	"github.com/iWorld-y/risk_radar/internal/rag"
)

func TestRootCommands(t *testing.T) {
	want := map[string]bool{
		"run": false, "serve": false, "search": false, "stats": false,
		"chat": false, "entities": false, "dates": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestSummaryView(t *testing.T) {
	s := &engine.RunSummary{RunID: "r1", Articles: []model.Scored{{}}}

	if v := summaryView(s, false); v.Articles != nil {
		t.Error("articles should be omitted by default")
	}
	if v := summaryView(s, true); len(v.Articles) != 1 {
		t.Error("articles should be kept when requested")
	}
	if len(s.Articles) != 1 {
		t.Error("summaryView must not modify the original summary")
	}
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printAnswer(cmd, &rag.Answer{
		Answer:       "Goldman looks risky [REFERENCE 1]\n",
		ArticlesUsed: 2,
		Citations:    []rag.Citation{{Ref: 1, Title: "Goldman faces inquiry", Entity: "Goldman Sachs", URL: "https://example.com/g1"}},
	})
	got := buf.String()
	for _, s := range []string{"Goldman looks risky [REFERENCE 1]\n", "Sources (2 articles used):", "[1] Goldman faces inquiry (Goldman Sachs) https://example.com/g1"} {
		if !strings.Contains(got, s) {
			t.Errorf("printAnswer() missing %q:\n%s", s, got)
		}
	}

	buf.Reset()
	printAnswer(cmd, &rag.Answer{Answer: "listing", Fallback: true, Citations: []rag.Citation{{Ref: 1}}})
	if strings.Contains(buf.String(), "Sources") {
		t.Error("fallback answers already list their articles")
	}
}
