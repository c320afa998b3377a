package engine

import (
	"math"
	"time"

	"github.com/iWorld-y/risk_radar/internal/model"
)

// State 运行状态机
type State string

const (
	StateIdle        State = "idle"
	StateCollecting  State = "collecting"
	StateFiltering   State = "filtering"
	StateScoring     State = "scoring"
	StateStoring     State = "storing"
	StateSummarizing State = "summarizing"
)

// RunSummary 一次运行的汇总，运行结束后不再修改，是对外报告的唯一产物
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	FinalState State     `json:"final_state"`

	Entities              []string                        `json:"entities"`
	ArticlesCollected     int                             `json:"articles_collected"`
	ArticlesStored        int                             `json:"articles_stored"`
	Errors                int                             `json:"errors"`
	Duplicates            int                             `json:"duplicates"`
	SentimentDistribution map[model.SentimentCategory]int `json:"sentiment_distribution"`
	AvgRiskScore          float64                         `json:"avg_risk_score"`

	SearchFailures             int            `json:"search_failures"`
	ExtractionFailures         int            `json:"extraction_failures"`
	ExtractionFailuresByReason map[string]int `json:"extraction_failures_by_reason"`
	FilteredOut                int            `json:"filtered_out"`
	InRunDuplicates            int            `json:"in_run_duplicates"`
	ScoringFallbacks           int            `json:"scoring_fallbacks"`
	Warnings                   []string       `json:"warnings,omitempty"`
	Aborted                    bool           `json:"aborted"`
	Cause                      string         `json:"cause,omitempty"`

	Articles []model.Scored `json:"articles,omitempty"`
}

func newSummary(runID string, entities []string, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:      runID,
		StartedAt:  started,
		FinalState: StateIdle,
		Entities:   entities,
		SentimentDistribution: map[model.SentimentCategory]int{
			model.Positive: 0,
			model.Neutral:  0,
			model.Negative: 0,
		},
		ExtractionFailuresByReason: map[string]int{},
	}
}

// addScored 汇总打分结果
func (s *RunSummary) addScored(items []model.Scored) {
	if len(items) == 0 {
		return
	}
	var total float64
	for _, it := range items {
		s.SentimentDistribution[it.Analysis.Sentiment.Category]++
		if it.Analysis.Sentiment.Fallback {
			s.ScoringFallbacks++
		}
		total += it.Analysis.RiskScore
	}
	s.AvgRiskScore = math.Round(total/float64(len(items))*100) / 100
	s.Articles = items
}

func (s *RunSummary) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}
