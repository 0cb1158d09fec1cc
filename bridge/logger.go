package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger atomic.Pointer[zap.Logger]
	nop    = zap.NewNop()
)

// Logger returns the bridge logger. It is a no-op until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nop
}

// SetLogger installs l as the bridge logger. A nil l restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
