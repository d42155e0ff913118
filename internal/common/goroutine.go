package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var spawned int64

// GetGoroutineCount returns how many goroutines SafeGo has started
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&spawned)
}

// SafeGo starts fn on its own goroutine; a panic is logged under name
// instead of taking the process down.
//
//	common.SafeGo(logger, "httpServer", func() { errs <- srv.Start() })
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&spawned, 1)
	go func() {
		defer Recover(logger, name, nil)
		fn()
	}()
}

// Recover must be deferred directly. It logs a panic with its stack and,
// when onPanic is set, hands it on as an error.
func Recover(logger arbor.ILogger, name string, onPanic func(err error)) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	stack := string(buf[:runtime.Stack(buf, false)])

	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in %s: %v\n%s\n", name, r, stack)
	} else {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stack).
			Msg("Recovered from panic")
	}

	if onPanic != nil {
		onPanic(fmt.Errorf("panic in %s: %v", name, r))
	}
}
