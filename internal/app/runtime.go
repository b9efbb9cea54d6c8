package app

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
)

const testModeEnv = "USERSVC_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the USERSVC_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// ApplyWorkers caps GOMAXPROCS at the configured worker count and returns the
// effective value. Zero keeps one worker per CPU.
func ApplyWorkers(cfg *Config) int {
	if cfg == nil || cfg.AppWorkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	runtime.GOMAXPROCS(cfg.AppWorkers)
	return cfg.AppWorkers
}
