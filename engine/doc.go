// Package engine provides a managed runtime backed by wazero.
//
// A VM hosts protector guests: WebAssembly modules exporting a single
// decision function, by default
//
//	bypass: func(fd: s32) -> s32
//
// Each loaded guest is a Protector object. Callers join the VM with Attach,
// which returns an Env bound to the caller until Detach. The Env resolves the
// decision function against a WIT signature, takes strong references and
// invokes the guest.
//
// # Architecture
//
//	VM        - wazero runtime, attachment semaphore, strong reference table
//	Env       - one caller's attachment; carries the pending fault
//	Protector - an instantiated guest module, refcounted
//	Signature - a WIT function type lowered to core value types
//
// # Host Module
//
// Guests may import functions from the "protector" host module:
//
//	raise(code: s32)          marks a fault on the calling Env
//	log(fd: s32, verdict: s32) writes a debug line
//
// A raised fault does not stop the guest. The call completes and CallInt
// returns the fault as a callback_fault error.
//
// # Lifecycle
//
// LoadProtector returns a Protector holding one owner reference. Env.NewRef
// adds strong references tracked in the VM's resource table. The guest
// instance is closed when the owner has called Close and every strong
// reference was released. VM.Close drops all outstanding references.
//
// # Thread Safety
//
// VM and Protector are safe for concurrent use. Calls into one guest
// instance are serialized. An Env must be used by one goroutine at a time.
package engine
