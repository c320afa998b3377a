package vectordb

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

// FilterPublishedAt 发布日期过滤键，取值见 ParseDateFilter
const FilterPublishedAt = "published_at"

const dayLayout = "2006-01-02"

// DateRange 左闭右开的时间区间，零值端点表示不设限
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains 时间是否落在区间内
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// ParseDateFilter 解析日期过滤表达式（UTC）：
//
//	2024-05-01              当天
//	2024-05-01..2024-05-07  闭区间，任一端可省略
//	last-7d                 最近 7 天
func ParseDateFilter(s string, now time.Time) (DateRange, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "last-"); ok {
		days, err := strconv.Atoi(strings.TrimSuffix(rest, "d"))
		if err != nil || days <= 0 || !strings.HasSuffix(rest, "d") {
			return DateRange{}, fault.Permanent(fault.ReasonBadRequest, "invalid date filter %q", s)
		}
		return DateRange{From: now.UTC().AddDate(0, 0, -days)}, nil
	}

	from, to, isRange := strings.Cut(s, "..")
	if !isRange {
		day, err := parseDay(s)
		if err != nil {
			return DateRange{}, err
		}
		return DateRange{From: day, To: day.AddDate(0, 0, 1)}, nil
	}
	if from == "" && to == "" {
		return DateRange{}, fault.Permanent(fault.ReasonBadRequest, "invalid date filter %q", s)
	}
	var r DateRange
	if from != "" {
		day, err := parseDay(from)
		if err != nil {
			return DateRange{}, err
		}
		r.From = day
	}
	if to != "" {
		day, err := parseDay(to)
		if err != nil {
			return DateRange{}, err
		}
		r.To = day.AddDate(0, 0, 1)
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return DateRange{}, fault.Permanent(fault.ReasonBadRequest, "empty date range %q", s)
	}
	return r, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fault.Permanent(fault.ReasonBadRequest, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// ValidateFilter 提前校验过滤条件，避免在每条候选上重复报错
func ValidateFilter(filter map[string]string) error {
	if v, ok := filter[FilterPublishedAt]; ok {
		if _, err := ParseDateFilter(v, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// publishedAt 解析元数据中的发布时间
func publishedAt(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Day 把元数据中的发布时间归一化为 YYYY-MM-DD
func Day(v any) (string, bool) {
	t, ok := publishedAt(v)
	if !ok {
		return "", false
	}
	return t.Format(dayLayout), true
}

func matchDate(v any, expr string) bool {
	r, err := ParseDateFilter(expr, time.Now())
	if err != nil {
		return false
	}
	t, ok := publishedAt(v)
	return ok && r.Contains(t)
}
