package bench

import (
	"context"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one scenario.
type Result struct {
	Name    string
	Detail  string
	Elapsed time.Duration
	Err     error
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Run executes scenarios against env, at most parallel at a time, and
// returns their results in the order given. A failing scenario does not
// stop the others. bar may be nil.
func Run(ctx context.Context, env *Env, scenarios []Scenario, parallel int, bar *progressbar.ProgressBar) []Result {
	results := make([]Result, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))

	for i, sc := range scenarios {
		g.Go(func() error {
			start := time.Now()
			detail, err := sc.Run(ctx, env)
			results[i] = Result{
				Name:    sc.Name,
				Detail:  detail,
				Elapsed: time.Since(start),
				Err:     err,
			}
			if bar != nil {
				bar.Describe("Finished: " + sc.Name)
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// NewProgressBar draws progress over n scenarios on stderr.
func NewProgressBar(n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription("Running scenarios"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
