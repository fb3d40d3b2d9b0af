//go:build darwin || (linux && (amd64 || arm64))

package bridge

import (
	"context"

	"github.com/ebitengine/purego"
)

// NativeCallbackSupported reports whether NativeCallback is available.
const NativeCallbackSupported = true

// NativeCallback returns a C function pointer with the signature
//
//	int32_t protect(int32_t fd);
//
// that calls Protect and answers 1 or 0. The pointer is created once per
// Bridge and stays valid for the life of the process.
func (b *Bridge) NativeCallback() uintptr {
	b.nativeOnce.Do(func() {
		b.native = purego.NewCallback(func(_ purego.CDecl, fd int32) int32 {
			if b.Protect(context.Background(), fd) {
				return 1
			}
			return 0
		})
	})
	return b.native
}
