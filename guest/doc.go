// Package guest builds minimal WebAssembly modules that implement the
// protector contract: an exported function
//
//	bypass: func(fd: s32) -> s32
//
// The built-in policies cover the cases the bridge has to handle: fixed
// answers, an allow list, guests that trap, guests that raise a fault through
// the host and guests whose export is missing or mistyped.
//
//	wasm := guest.AllowList(3, 7).Encode()
//	p, err := vm.LoadProtector(ctx, wasm)
//
// Guests that raise or log import the host module named HostModule.
package guest
