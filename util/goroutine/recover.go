package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// Recover recovers from a panic in the calling goroutine and logs it.
// It must be deferred directly. A nil logger falls back to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		logPanic(name, r, logger)
	}
}

// RecoverThen behaves like Recover and additionally calls onPanic with the
// recovered value. It must be deferred directly.
func RecoverThen(name string, logger *zap.SugaredLogger, onPanic func(any)) {
	if r := recover(); r != nil {
		logPanic(name, r, logger)
		if onPanic != nil {
			onPanic(r)
		}
	}
}

func logPanic(name string, r any, logger *zap.SugaredLogger) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n", name, r, string(buf[:n]))
}
