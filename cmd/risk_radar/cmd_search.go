package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/risk_radar/internal/app"
	"github.com/iWorld-y/risk_radar/internal/store"
	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

var searchFlags struct {
	topK   int
	entity string
	source string
	date   string
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Similarity search over stored articles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entities present in the vector store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runListing(cmd, "entities", (*store.Store).Entities)
	},
}

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List article publish dates in the vector store, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runListing(cmd, "dates", (*store.Store).Dates)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector store statistics",
	RunE:  runStats,
}

func init() {
	f := searchCmd.Flags()
	f.IntVar(&searchFlags.topK, "top-k", 5, "Number of matches to return")
	f.StringVar(&searchFlags.entity, "entity", "", "Only match articles of this entity")
	f.StringVar(&searchFlags.source, "source", "", "Only match articles from this source")
	f.StringVar(&searchFlags.date, "date", "", "Published date filter: YYYY-MM-DD, FROM..TO or last-Nd")
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	filter := map[string]string{}
	if searchFlags.entity != "" {
		filter["entity"] = searchFlags.entity
	}
	if searchFlags.source != "" {
		filter["source"] = searchFlags.source
	}
	if searchFlags.date != "" {
		filter[vectordb.FilterPublishedAt] = searchFlags.date
	}
	matches, err := st.Search(ctx, strings.Join(args, " "), searchFlags.topK, filter)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(out, "%d. [%.3f] %v\n", i+1, m.Score, m.Metadata["title"])
		fmt.Fprintf(out, "   %v | %v | risk %v\n", m.Metadata["entity"], m.Metadata["source"], m.Metadata["risk_score"])
		fmt.Fprintf(out, "   %v\n", m.Metadata["url"])
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
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

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runListing(cmd *cobra.Command, name string, list func(*store.Store, context.Context) ([]string, error)) error {
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

	values, err := list(st, ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	out := cmd.OutOrStdout()
	if len(values) == 0 {
		fmt.Fprintf(out, "No %s.\n", name)
		return nil
	}
	for _, v := range values {
		fmt.Fprintln(out, v)
	}
	return nil
}
