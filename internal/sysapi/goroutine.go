package sysapi

import (
	"bytes"
	"runtime"
	"strconv"
)

// CurrentGoroutineID identifies the calling goroutine, the closest Go
// analogue to cyclone's sys_api::threadGetCurrentID(). The reactor uses
// it purely for the owner-goroutine assertions on RegisterIO,
// RegisterTimer and DeleteEvent: a check that runs in every build, not
// a scheduling primitive. Parsing runtime.Stack's header is the
// standard (if informal) way to obtain this in Go; no library in the
// retrieval pack exposes a goroutine id, so this stays on the standard
// library rather than importing one for a single small helper.
func CurrentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return -1
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(b[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
