package pipe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/cyclone/internal/sysapi"
)

// Pipe loopback.
func TestPipeLoopback(t *testing.T) {
	p := New()
	defer p.Close()

	scratch := make([]byte, 1024)
	_, err := p.Read(scratch)
	require.Error(t, err)
	require.True(t, sysapi.IsWouldBlock(cause(err)), "expected a would-block error on an empty pipe")

	payload := []byte("Hello,World!")
	n, err := p.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	n, err = p.Read(scratch)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, string(payload), string(scratch[:n]))

	_, err = p.Read(scratch)
	require.Error(t, err)
	require.True(t, sysapi.IsWouldBlock(cause(err)), "expected second read to would-block")
}

// cause unwraps a github.com/pkg/errors-wrapped error back to its root
// syscall errno so sysapi.IsWouldBlock can classify it.
func cause(err error) error {
	type causer interface{ Cause() error }
	for err != nil {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Cause()
	}
	return err
}
