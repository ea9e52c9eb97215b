// Package guard flips the binaries into test mode when imported from a
// test, so nothing dials Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SHOPLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("SHOPLEDGER_TEST_MODE", "1")
		}
	})
}
