package bridge

import (
	"context"
	"math"
	"syscall"
)

// Control is a net.Dialer and net.ListenConfig control function. It asks the
// protector about the socket and fails with EACCES when it is not protected.
func (b *Bridge) Control(network, address string, c syscall.RawConn) error {
	return b.ControlContext(context.Background(), network, address, c)
}

// ControlContext is Control for net.Dialer.ControlContext.
func (b *Bridge) ControlContext(ctx context.Context, _, _ string, c syscall.RawConn) error {
	var protected bool
	err := c.Control(func(fd uintptr) {
		if fd > math.MaxInt32 {
			return
		}
		protected = b.Protect(ctx, int32(fd))
	})
	if err != nil {
		return err
	}
	if !protected {
		return syscall.EACCES
	}
	return nil
}
