//go:build aix || solaris

package netpoll

// aix and solaris have neither epoll nor kqueue in golang.org/x/sys, so
// select is the platform default rather than an opt-in test backend.
func newPlatformPoller() (Poller, error) { return NewSelect() }
