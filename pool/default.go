package pool

import (
	"sync"

	"github.com/utkarsh5026/unblock/config"
)

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide pool, creating it on first use from
// UNBLOCK_* environment variables. An invalid environment falls back to
// the built-in defaults.
func Default() *Pool {
	defaultOnce.Do(func() {
		c, err := config.FromEnv()
		if err != nil {
			debugLog("default pool: %v; using built-in configuration", err)
			c = config.Default()
		}
		defaultPool = New(WithConfig(c), WithName("default"))
	})
	return defaultPool
}
