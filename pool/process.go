package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Process runs fn once per task on p and returns the results in input
// order. It returns the first error any closure produced; closures already
// submitted keep running, since running work cannot be cancelled.
//
// Example:
//
//	sizes, err := pool.Process(ctx, p, paths, func(path string) (int64, error) {
//	    fi, err := os.Stat(path)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return fi.Size(), nil
//	})
func Process[T, R any](ctx context.Context, p *Pool, tasks []T, fn func(T) (R, error)) ([]R, error) {
	if len(tasks) == 0 {
		return []R{}, nil
	}

	futures := make([]*Future[R], len(tasks))
	for i, t := range tasks {
		f, err := Unblock(p, func() (R, error) { return fn(t) })
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}

	results := make([]R, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.GetWithContext(ctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
