package engine

import (
	"bytes"
	"runtime"

	"github.com/cespare/xxhash/v2"
)

// goroutineFingerprint returns a hash of the calling goroutine's id, parsed
// from the "goroutine <id> [status]:" header of its stack trace. It is used
// only to detect a transaction being built from more than one goroutine.
func goroutineFingerprint() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	return xxhash.Sum64(fields[1])
}
