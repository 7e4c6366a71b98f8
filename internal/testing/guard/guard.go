package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AMPERE_TEST_MODE") == "" {
			_ = os.Setenv("AMPERE_TEST_MODE", "1")
		}
	})
}
