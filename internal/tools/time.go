package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeInfo is the result of the Time tool.
type TimeInfo struct {
	CurrentDate   string `json:"current_date"`
	CurrentYear   int    `json:"current_year"`
	CurrentMonth  int    `json:"current_month"`
	CurrentDay    int    `json:"current_day"`
	RelativeTerm  string `json:"relative_term"`
	ISOFormat     string `json:"iso_format"`
	SearchContext string `json:"search_context"`
}

// TimeTool turns a relative time term into concrete dates.
type TimeTool struct {
	now func() time.Time
}

// NewTimeTool creates a TimeTool. now may be nil.
func NewTimeTool(now func() time.Time) *TimeTool {
	if now == nil {
		now = time.Now
	}
	return &TimeTool{now: now}
}

func (t *TimeTool) Invoke(_ context.Context, input string) (string, error) {
	info := Resolve(t.now(), input)
	data, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Resolve computes the time context for term at now.
func Resolve(now time.Time, term string) TimeInfo {
	term = strings.TrimSpace(term)
	if term == "" {
		term = "current"
	}
	info := TimeInfo{
		CurrentDate:  now.Format("2006-01-02"),
		CurrentYear:  now.Year(),
		CurrentMonth: int(now.Month()),
		CurrentDay:   now.Day(),
		RelativeTerm: term,
		ISOFormat:    now.Format(time.RFC3339),
	}

	lower := strings.ToLower(term)
	switch {
	case strings.Contains(lower, "year") || strings.Contains(term, "年"):
		info.SearchContext = fmt.Sprintf("%d", now.Year())
	case strings.Contains(lower, "month") || strings.Contains(term, "月"):
		info.SearchContext = now.Format("2006-01")
	case strings.Contains(lower, "latest") || strings.Contains(term, "最新"):
		info.SearchContext = fmt.Sprintf("%d", now.Year())
	case strings.Contains(lower, "recent") || strings.Contains(term, "最近"):
		info.SearchContext = fmt.Sprintf("%d-%d", now.AddDate(0, 0, -90).Year(), now.Year())
	default:
		info.SearchContext = fmt.Sprintf("%d", now.Year())
	}
	return info
}
