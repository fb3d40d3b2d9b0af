//go:build !(darwin || (linux && (amd64 || arm64)))

package bridge

// NativeCallbackSupported reports whether NativeCallback is available.
const NativeCallbackSupported = false

// NativeCallback returns 0 on platforms without C callback support.
func (b *Bridge) NativeCallback() uintptr {
	return 0
}
