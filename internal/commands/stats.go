package commands

import (
	"fmt"
	"time"

	"sessionhub/internal/output"
	"sessionhub/internal/stats"
	"sessionhub/internal/ui"
)

// RunStats prints a usage summary for period, limited to project when set.
func RunStats(period, project string) error {
	_, store, err := loadStore()
	if err != nil {
		return output.PrintError(err)
	}
	from, to, err := stats.PeriodRange(period, time.Now())
	if err != nil {
		return output.PrintError(err)
	}

	scanner := stats.NewScanner(store)
	var records []stats.SessionRecord
	if project != "" {
		var dir string
		if dir, err = projectDirArg(project); err != nil {
			return output.PrintError(err)
		}
		records, err = scanner.Project(dir, from)
	} else {
		records, err = scanner.All(from)
	}
	if err != nil {
		return output.PrintError(err)
	}

	sum := stats.Summarize(period, records, from, to)
	return output.Print(sum, func() { printSummary(sum) })
}

func printSummary(sum stats.Summary) {
	ui.ShowHeader("Usage: " + formatPeriod(sum.Period))
	if sum.TotalSessions == 0 {
		ui.ShowInfo("No sessions in this period")
		return
	}
	ui.ShowField("sessions", sum.TotalSessions)
	ui.ShowField("cost", fmt.Sprintf("$%.2f", sum.TotalCost))
	ui.ShowField("input", formatTokens(sum.InputTokens))
	ui.ShowField("output", formatTokens(sum.OutputTokens))
	ui.ShowField("cache write", formatTokens(sum.CacheCreate))
	ui.ShowField("cache read", formatTokens(sum.CacheRead))

	if len(sum.TopProjects) > 1 {
		fmt.Fprintln(ui.Out)
		for _, p := range sum.TopProjects {
			fmt.Fprintf(ui.Out, "   %-30s $%.2f\n", p.Project, p.Cost)
		}
	}
	if len(sum.TopModels) > 0 {
		fmt.Fprintln(ui.Out)
		for _, m := range sum.TopModels {
			name := m.Model
			if name == "" {
				name = "(unknown)"
			}
			fmt.Fprintf(ui.Out, "   %-30s $%.2f\n", name, m.Cost)
		}
	}
}

func formatPeriod(period string) string {
	switch period {
	case stats.PeriodToday:
		return "Today"
	case stats.PeriodMonth:
		return "This Month"
	case stats.PeriodAll:
		return "All Time"
	default:
		return "This Week"
	}
}
