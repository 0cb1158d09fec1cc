//go:build !linux && !windows

package bridge

import (
	"bytes"
	"runtime"
	"strconv"
)

// There is no portable thread id outside linux and windows. Attached
// goroutines are locked to their OS thread, so the goroutine id identifies
// the thread for as long as the binding exists.
func currentThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}
