// Package stats summarizes token usage and estimated cost from session
// transcripts.
package stats

import "time"

// SessionRecord is the usage total of one transcript.
type SessionRecord struct {
	SessionID         string        `json:"sessionId"`
	ProjectDir        string        `json:"projectDir"`
	ProjectPath       string        `json:"projectPath,omitempty"`
	Model             string        `json:"model"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	Duration          time.Duration `json:"duration"`
	InputTokens       int64         `json:"inputTokens"`
	OutputTokens      int64         `json:"outputTokens"`
	CacheCreateTokens int64         `json:"cacheCreateTokens"`
	CacheReadTokens   int64         `json:"cacheReadTokens"`
	CostUSD           float64       `json:"costUsd"`
	Turns             int           `json:"turns"`
}

// DailyStat aggregates records by the calendar date they started on.
type DailyStat struct {
	Date         string             `json:"date"`
	Sessions     int                `json:"sessions"`
	TotalCost    float64            `json:"totalCost"`
	InputTokens  int64              `json:"inputTokens"`
	OutputTokens int64              `json:"outputTokens"`
	ByProject    map[string]float64 `json:"byProject"`
	ByModel      map[string]float64 `json:"byModel"`
}

// Summary aggregates records over a period.
type Summary struct {
	Period         string        `json:"period"`
	From           time.Time     `json:"from,omitempty"`
	To             time.Time     `json:"to,omitempty"`
	TotalCost      float64       `json:"totalCost"`
	TotalSessions  int           `json:"totalSessions"`
	InputTokens    int64         `json:"inputTokens"`
	OutputTokens   int64         `json:"outputTokens"`
	CacheCreate    int64         `json:"cacheCreateTokens"`
	CacheRead      int64         `json:"cacheReadTokens"`
	TopProjects    []ProjectCost `json:"topProjects"`
	TopModels      []ModelCost   `json:"topModels"`
	DailyBreakdown []DailyStat   `json:"dailyBreakdown"`
}

type ProjectCost struct {
	Project string  `json:"project"`
	Cost    float64 `json:"cost"`
}

type ModelCost struct {
	Model string  `json:"model"`
	Cost  float64 `json:"cost"`
}
