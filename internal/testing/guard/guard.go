// Package guard switches the process into test mode when imported, so
// binaries under test skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

// Env is the variable the application reads to detect test mode.
const Env = "WAREHOUSE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
	})
}
