package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// quietState guards the process-wide log level override used while an
// authorization handshake is in flight. The level is global, so nesting is
// refcounted: the first caller saves and raises the level, the last restore
// puts it back. Restoration must run on every exit path; callers defer the
// returned function.
var quietState struct {
	mu    sync.Mutex
	depth int
	saved zerolog.Level
}

// Quiet raises the global log level so that only fatal output reaches the
// terminal, keeping interactive authorization prompts readable. It returns
// the restore function. Calling the restore more than once is a no-op.
func Quiet() func() {
	quietState.mu.Lock()
	if quietState.depth == 0 {
		quietState.saved = zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}
	quietState.depth++
	quietState.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			quietState.mu.Lock()
			quietState.depth--
			if quietState.depth == 0 {
				zerolog.SetGlobalLevel(quietState.saved)
			}
			quietState.mu.Unlock()
		})
	}
}
