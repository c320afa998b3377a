package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/app"
	"github.com/iWorld-y/risk_radar/internal/rag"
)

var chatFlags struct {
	topK   int
	entity string
	date   string
}

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Ask a question answered from stored articles with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	f := chatCmd.Flags()
	f.IntVar(&chatFlags.topK, "top-k", 0, "Number of articles to retrieve (0 uses rag.top_k)")
	f.StringVar(&chatFlags.entity, "entity", "", "Only use articles of this entity")
	f.StringVar(&chatFlags.date, "date", "", "Published date filter: YYYY-MM-DD, FROM..TO or last-Nd")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, closeFn, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	agent, err := app.NewAgent(ctx, cfg, st)
	if err != nil {
		return err
	}
	ans, err := agent.Chat(ctx, rag.Request{
		Question: strings.Join(args, " "),
		Entity:   chatFlags.entity,
		Date:     chatFlags.date,
		TopK:     chatFlags.topK,
	})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	printAnswer(cmd, ans)
	return nil
}

func printAnswer(cmd *cobra.Command, ans *rag.Answer) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.TrimSpace(ans.Answer))
	if ans.Fallback || len(ans.Citations) == 0 {
		return
	}
	fmt.Fprintf(out, "\nSources (%d articles used):\n", ans.ArticlesUsed)
	for _, c := range ans.Citations {
		fmt.Fprintf(out, "[%d] %s (%s) %s\n", c.Ref, c.Title, c.Entity, c.URL)
	}
}
