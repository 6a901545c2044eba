package sysapi

import "time"

// MonotonicNow returns a monotonic instant suitable for timer deadline
// math; time.Time on Go already carries a monotonic reading internally
// as long as it comes from time.Now(), so this just names the call the
// way cyclone's sys_api::timeNow() is named at each call site.
func MonotonicNow() time.Time {
	return time.Now()
}
