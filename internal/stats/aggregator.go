package stats

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Periods accepted by PeriodRange.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

// PeriodRange returns the [from, to] window of a named period relative to
// now. "week" starts on Monday. "all" yields zero times.
func PeriodRange(period string, now time.Time) (time.Time, time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case PeriodToday:
		return midnight, now, nil
	case PeriodWeek, "":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return midnight.AddDate(0, 0, -(weekday - 1)), now, nil
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), now, nil
	case PeriodAll:
		return time.Time{}, time.Time{}, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q (want today, week, month or all)", period)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	return to.IsZero() || !t.After(to)
}

// projectName labels a record by its path's last element, falling back to
// the encoded directory.
func projectName(r SessionRecord) string {
	if r.ProjectPath != "" {
		return filepath.Base(r.ProjectPath)
	}
	return r.ProjectDir
}

// Aggregate groups records started within [from, to] by date, oldest first.
func Aggregate(records []SessionRecord, from, to time.Time) []DailyStat {
	days := make(map[string]*DailyStat)
	for _, r := range records {
		if !inRange(r.StartTime, from, to) {
			continue
		}
		date := r.StartTime.Local().Format("2006-01-02")
		ds, ok := days[date]
		if !ok {
			ds = &DailyStat{
				Date:      date,
				ByProject: make(map[string]float64),
				ByModel:   make(map[string]float64),
			}
			days[date] = ds
		}
		ds.Sessions++
		ds.TotalCost += r.CostUSD
		ds.InputTokens += r.InputTokens
		ds.OutputTokens += r.OutputTokens
		ds.ByProject[projectName(r)] += r.CostUSD
		ds.ByModel[r.Model] += r.CostUSD
	}

	out := make([]DailyStat, 0, len(days))
	for _, ds := range days {
		out = append(out, *ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Summarize builds a Summary of records started within [from, to].
func Summarize(period string, records []SessionRecord, from, to time.Time) Summary {
	sum := Summary{Period: period, From: from, To: to}
	projects := make(map[string]float64)
	models := make(map[string]float64)
	for _, r := range records {
		if !inRange(r.StartTime, from, to) {
			continue
		}
		sum.TotalSessions++
		sum.TotalCost += r.CostUSD
		sum.InputTokens += r.InputTokens
		sum.OutputTokens += r.OutputTokens
		sum.CacheCreate += r.CacheCreateTokens
		sum.CacheRead += r.CacheReadTokens
		projects[projectName(r)] += r.CostUSD
		models[r.Model] += r.CostUSD
	}

	for p, c := range projects {
		sum.TopProjects = append(sum.TopProjects, ProjectCost{Project: p, Cost: c})
	}
	sort.Slice(sum.TopProjects, func(i, j int) bool { return sum.TopProjects[i].Cost > sum.TopProjects[j].Cost })
	for m, c := range models {
		sum.TopModels = append(sum.TopModels, ModelCost{Model: m, Cost: c})
	}
	sort.Slice(sum.TopModels, func(i, j int) bool { return sum.TopModels[i].Cost > sum.TopModels[j].Cost })

	sum.DailyBreakdown = Aggregate(records, from, to)
	return sum
}
