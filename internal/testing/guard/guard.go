package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ATRIUM_TEST_MODE") == "" {
			_ = os.Setenv("ATRIUM_TEST_MODE", "1")
		}
	})
}
