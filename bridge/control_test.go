package bridge

import (
	"context"
	stderrors "errors"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/protect-bridge/internal/fakevm"
)

func TestControl(t *testing.T) {
	_, _, b := setup(t)
	ctx := context.Background()

	var fds []int32
	p := fakevm.NewObject("p", func(fd int32) (int32, error) {
		fds = append(fds, fd)
		return 1, nil
	})
	require.NoError(t, b.SetProtector(ctx, p))

	lc := net.ListenConfig{Control: b.Control}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	require.Len(t, fds, 1)
	assert.GreaterOrEqual(t, fds[0], int32(0))

	d := net.Dialer{ControlContext: b.ControlContext}
	conn, err := d.DialContext(ctx, "tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()
	assert.Len(t, fds, 2)
}

func TestControl_Denied(t *testing.T) {
	_, _, b := setup(t)
	ctx := context.Background()
	require.NoError(t, b.SetProtector(ctx, fakevm.Returning("deny", 0)))

	lc := net.ListenConfig{Control: b.Control}
	_, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, syscall.EACCES), "got %v", err)
}

func TestControl_NoProtector(t *testing.T) {
	_, _, b := setup(t)

	lc := net.ListenConfig{Control: b.Control}
	_, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	assert.True(t, stderrors.Is(err, syscall.EACCES), "got %v", err)
}
