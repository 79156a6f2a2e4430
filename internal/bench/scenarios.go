// Package bench runs live checks of the pool and stream adapters and
// renders a report of how they went.
package bench

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/b97tsk/async"

	"github.com/utkarsh5026/unblock/config"
	"github.com/utkarsh5026/unblock/coop"
	"github.com/utkarsh5026/unblock/pool"
	"github.com/utkarsh5026/unblock/stream"
)

// Scenario is one named check. Run returns a short human-readable detail
// line, or an error when the check failed.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) (string, error)
}

// Env is what every scenario runs against.
type Env struct {
	Config config.Config
	Pool   *pool.Pool
	// Dir holds scratch files.
	Dir string
}

// Scenarios returns the built-in checks in report order.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "sleep-parallelism",
			Description: "8 closures sleeping 100ms finish well under 8x100ms",
			Run:         sleepParallelism,
		},
		{
			Name:        "round-trip",
			Description: "bytes written through a stream read back unchanged",
			Run:         roundTrip,
		},
		{
			Name:        "seek",
			Description: "relative seeks of 7 then 8 land at 15",
			Run:         seekArithmetic,
		},
		{
			Name:        "channel-drain",
			Description: "100000 values drained from a channel in order",
			Run:         channelDrain,
		},
		{
			Name:        "idle-shrink",
			Description: "workers above the minimum exit after the idle timeout",
			Run:         idleShrink,
		},
		{
			Name:        "coroutines",
			Description: "coroutines awaiting blocking closures overlap",
			Run:         coroutines,
		},
	}
}

// Select returns the scenarios whose names are in names, in report order.
// An empty names selects all of them.
func Select(names []string) ([]Scenario, error) {
	all := Scenarios()
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var picked []Scenario
	for _, s := range all {
		if want[s.Name] {
			picked = append(picked, s)
		}
	}
	if len(picked) != len(want) {
		known := make(map[string]bool, len(all))
		for _, s := range all {
			known[s.Name] = true
		}
		for _, n := range names {
			if !known[n] {
				return nil, fmt.Errorf("unknown scenario %q", n)
			}
		}
	}
	return picked, nil
}

func sleepParallelism(ctx context.Context, env *Env) (string, error) {
	const n = 8
	const nap = 100 * time.Millisecond

	start := time.Now()
	futures := make([]*pool.Future[struct{}], 0, n)
	for range n {
		f, err := pool.Go(env.Pool, func() { time.Sleep(nap) })
		if err != nil {
			return "", err
		}
		futures = append(futures, f)
	}
	for _, f := range futures {
		if _, err := f.GetWithContext(ctx); err != nil {
			return "", err
		}
	}

	elapsed := time.Since(start)
	if limit := nap * n / 2; elapsed >= limit {
		return "", fmt.Errorf("took %v, expected under %v", elapsed.Round(time.Millisecond), limit)
	}
	return fmt.Sprintf("%d sleeps in %v", n, elapsed.Round(time.Millisecond)), nil
}

func roundTrip(ctx context.Context, env *Env) (string, error) {
	f, err := os.CreateTemp(env.Dir, "round-trip-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	want := pattern(1 << 20)
	s := stream.New(f, stream.WithPool(env.Pool), stream.WithConfig(env.Config))
	defer s.Close()

	if _, err := s.WriteContext(ctx, want); err != nil {
		return "", err
	}
	if _, err := s.SeekContext(ctx, 0, io.SeekStart); err != nil {
		return "", err
	}

	got := make([]byte, 0, len(want))
	buf := make([]byte, 4096)
	for {
		n, err := s.ReadContext(ctx, buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	if !bytes.Equal(want, got) {
		return "", fmt.Errorf("read back %d bytes that differ from the %d written", len(got), len(want))
	}
	return fmt.Sprintf("%d bytes through a %d byte buffer", len(got), env.Config.BufferSize), nil
}

func seekArithmetic(ctx context.Context, env *Env) (string, error) {
	s := stream.New(bytes.NewReader(pattern(64)), stream.WithPool(env.Pool))

	if _, err := s.SeekContext(ctx, 7, io.SeekCurrent); err != nil {
		return "", err
	}
	pos, err := s.SeekContext(ctx, 8, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	if pos != 15 {
		return "", fmt.Errorf("landed at %d", pos)
	}
	return "position 15", nil
}

func channelDrain(ctx context.Context, env *Env) (string, error) {
	const n = 100_000

	ch := make(chan int, 256)
	go func() {
		defer close(ch)
		for i := range n {
			ch <- i
		}
	}()

	it := stream.FromChan(ch, stream.WithPool(env.Pool))
	want := 0
	for v, err := range it.All(ctx) {
		if err != nil {
			return "", err
		}
		if v != want {
			return "", fmt.Errorf("value %d arrived at position %d", v, want)
		}
		want++
	}
	if want != n {
		return "", fmt.Errorf("drained %d of %d values", want, n)
	}
	return fmt.Sprintf("%d values", n), nil
}

func idleShrink(ctx context.Context, env *Env) (string, error) {
	const n = 6
	idle := min(env.Config.IdleTimeout, 100*time.Millisecond)
	floor := min(env.Config.MinWorkers, n)

	p := pool.New(
		pool.WithMaxWorkers(n),
		pool.WithMinWorkers(floor),
		pool.WithIdleTimeout(idle),
	)
	defer p.Close(time.Second)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(n)
	for range n {
		if _, err := pool.Go(p, func() {
			started.Done()
			<-release
		}); err != nil {
			close(release)
			return "", err
		}
	}
	started.Wait()
	peak := p.Stats().Total
	close(release)

	deadline := time.NewTimer(idle*4 + time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(max(idle/4, time.Millisecond))
	defer tick.Stop()

	for p.Stats().Total > floor {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("still %d workers, want %d", p.Stats().Total, floor)
		case <-tick.C:
		}
	}
	return fmt.Sprintf("%d workers shrank to %d", peak, p.Stats().Total), nil
}

func coroutines(ctx context.Context, env *Env) (string, error) {
	const n = 16
	const nap = 50 * time.Millisecond

	var running sync.WaitGroup
	var e async.Executor
	e.Autorun(func() { running.Go(e.Run) })
	defer running.Wait()

	done := make(chan error, n)
	start := time.Now()
	for range n {
		e.Spawn(coop.Go(env.Pool, func() { time.Sleep(nap) }, func(err error) {
			done <- err
		}))
	}

	for range n {
		select {
		case err := <-done:
			if err != nil {
				return "", err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	elapsed := time.Since(start)
	if limit := nap * n / 2; elapsed >= limit {
		return "", fmt.Errorf("took %v, expected under %v", elapsed.Round(time.Millisecond), limit)
	}
	return fmt.Sprintf("%d coroutines in %v", n, elapsed.Round(time.Millisecond)), nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i>>8)
	}
	return b
}
