package bench

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/unblock/config"
	"github.com/utkarsh5026/unblock/pool"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	c := config.Default()
	c.MaxWorkers = 32
	c.IdleTimeout = 50 * time.Millisecond

	p := pool.New(pool.WithConfig(c))
	t.Cleanup(func() { _ = p.Close(5 * time.Second) })
	return &Env{Config: c, Pool: p, Dir: t.TempDir()}
}

func TestSelect(t *testing.T) {
	all, err := Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(Scenarios()))

	picked, err := Select([]string{"seek", "round-trip"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "round-trip", picked[0].Name, "report order is kept")
	assert.Equal(t, "seek", picked[1].Name)

	_, err = Select([]string{"seek", "nope"})
	assert.ErrorContains(t, err, `"nope"`)
}

func TestScenarios_Pass(t *testing.T) {
	env := testEnv(t)

	for _, sc := range Scenarios() {
		t.Run(sc.Name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			detail, err := sc.Run(ctx, env)
			require.NoError(t, err)
			assert.NotEmpty(t, detail)
		})
	}
}

func TestRun_KeepsOrderAndFailures(t *testing.T) {
	boom := errors.New("boom")
	scenarios := []Scenario{
		{Name: "slow", Run: func(context.Context, *Env) (string, error) {
			time.Sleep(30 * time.Millisecond)
			return "slow done", nil
		}},
		{Name: "broken", Run: func(context.Context, *Env) (string, error) {
			return "", boom
		}},
		{Name: "fast", Run: func(context.Context, *Env) (string, error) {
			return "fast done", nil
		}},
	}

	results := Run(context.Background(), &Env{}, scenarios, 3, nil)
	require.Len(t, results, 3)

	assert.Equal(t, "slow", results[0].Name)
	assert.True(t, results[0].Passed())
	assert.GreaterOrEqual(t, results[0].Elapsed, 30*time.Millisecond)

	assert.Equal(t, "broken", results[1].Name)
	assert.ErrorIs(t, results[1].Err, boom)

	assert.Equal(t, "fast done", results[2].Detail, "a failure does not cancel the rest")
}

func TestRender(t *testing.T) {
	var out bytes.Buffer
	failed := Render(&out, []Result{
		{Name: "good", Detail: "fine", Elapsed: 2 * time.Millisecond},
		{Name: "bad", Err: errors.New("went wrong")},
	}, pool.Stats{Total: 3, Max: 8, Spawned: 5, Exited: 2})

	assert.Equal(t, 1, failed)
	text := out.String()
	assert.Contains(t, text, "good")
	assert.Contains(t, text, "went wrong")
	assert.Contains(t, text, "1/2 scenarios failed")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "500µs", formatElapsed(500*time.Microsecond))
	assert.Equal(t, "12.5ms", formatElapsed(12500*time.Microsecond))
	assert.Equal(t, "1.50s", formatElapsed(1500*time.Millisecond))
}
