package bench

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/utkarsh5026/unblock/config"
	"github.com/utkarsh5026/unblock/pool"
)

var (
	Bold   = color.New(color.Bold)
	Green  = color.New(color.FgGreen)
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
)

// PrintConfig writes the effective configuration.
func PrintConfig(w io.Writer, c config.Config) {
	printSectionHeader(w, "CONFIGURATION")
	_, _ = fmt.Fprintf(w, "  Max workers:     %d\n", c.MaxWorkers)
	_, _ = fmt.Fprintf(w, "  Min workers:     %d\n", c.MinWorkers)
	_, _ = fmt.Fprintf(w, "  Idle timeout:    %v\n", c.IdleTimeout)
	_, _ = fmt.Fprintf(w, "  Buffer size:     %d bytes\n", c.BufferSize)
	_, _ = fmt.Fprintf(w, "  Thread affinity: %v\n", c.ThreadAffinity)
}

// Render writes the results table, the pool counters and a footer. It
// returns the number of failed scenarios.
func Render(w io.Writer, results []Result, stats pool.Stats) int {
	printSectionHeader(w, "SCENARIOS")

	table := tablewriter.NewWriter(w)
	table.Header("Status", "Scenario", "Time", "Detail")

	failed := 0
	for _, r := range results {
		status, detail := "✅", r.Detail
		if !r.Passed() {
			status, detail = "❌", r.Err.Error()
			failed++
		}
		_ = table.Append(status, r.Name, formatElapsed(r.Elapsed), detail)
	}
	if err := table.Render(); err != nil {
		_, _ = Red.Fprintln(w, "Error in rendering scenario table")
	}

	printSectionHeader(w, "POOL")
	counters := tablewriter.NewWriter(w)
	counters.Header("Workers", "Idle", "Max", "Queued", "Spawned", "Exited")
	_ = counters.Append(
		fmt.Sprint(stats.Total),
		fmt.Sprint(stats.Idle),
		fmt.Sprint(stats.Max),
		fmt.Sprint(stats.Queued),
		fmt.Sprint(stats.Spawned),
		fmt.Sprint(stats.Exited),
	)
	if err := counters.Render(); err != nil {
		_, _ = Red.Fprintln(w, "Error in rendering pool table")
	}

	_, _ = fmt.Fprintln(w)
	if failed == 0 {
		_, _ = Green.Fprintf(w, "✅ All %d scenarios passed\n", len(results))
	} else {
		_, _ = Yellow.Fprintf(w, "⚠️  %d/%d scenarios failed\n", failed, len(results))
	}
	return failed
}

func printSectionHeader(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w)
	_, _ = Bold.Fprintln(w, "═══════════════════════════════════════════════")
	_, _ = Bold.Fprintln(w, title)
	_, _ = Bold.Fprintln(w, "═══════════════════════════════════════════════")
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
