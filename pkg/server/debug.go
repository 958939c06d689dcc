package server

import (
	"log"
	"sync/atomic"
)

// debugging is process-wide. cmd/server sets it from -debug or
// XMLATTACH_DEBUG; the event log also turns on while it is set.
var debugging atomic.Bool

// SetDebug switches verbose logging of ticks and events.
func SetDebug(on bool) {
	if debugging.Swap(on) == on {
		return
	}
	if on {
		log.Printf("server: debug logging on")
	} else {
		log.Printf("server: debug logging off")
	}
}

// IsDebug reports whether SetDebug(true) is in effect.
func IsDebug() bool { return debugging.Load() }

func debugf(format string, args ...any) {
	if debugging.Load() {
		log.Printf("server: debug: "+format, args...)
	}
}
