// Package protectbridge lets native tunneling code ask a managed runtime
// whether a socket should bypass the tunnel.
//
// A native engine runs on goroutines and threads the managed runtime never
// created. Before it can call the protector callback it has to attach to the
// runtime, and the callback object may be swapped or torn down while calls are
// in flight. This module keeps that handshake in one place.
//
// # Architecture Overview
//
//	protectbridge/      Root package with the VM, Env, Object and Method contracts
//	├── registry/       Process-wide runtime handle with load/unload lifecycle
//	├── bridge/         Protector cache and the Protect hot path
//	├── engine/         wazero-backed managed runtime hosting guest protectors
//	├── resource/       Strong reference table used by the engine
//	├── guest/          Minimal wasm builder for protector guests
//	├── config/         File and environment configuration for the CLI
//	├── errors/         Structured error types
//	└── cmd/protectctl  CLI to exercise a protector
//
// # Quick Start
//
//	vm, err := engine.NewVM(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close(ctx)
//
//	reg := registry.New()
//	reg.OnLoad(vm)
//	defer reg.OnUnload()
//
//	b := bridge.New(reg)
//
//	p, err := vm.LoadProtector(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.SetProtector(ctx, p); err != nil {
//	    log.Fatal(err)
//	}
//	p.Close(ctx) // the bridge keeps its own strong reference
//
//	// From any goroutine:
//	ok := b.Protect(ctx, int32(fd))
//
// # Attachment
//
// An Env is the attachment of one caller to a VM. Code already running on
// the managed side carries its Env in a context (WithEnv); Protect reuses it
// and never detaches it. Callers without one are attached for the duration of
// a single call.
//
// # Thread Safety
//
// VM, Registry and Bridge are safe for concurrent use. An Env belongs to a
// single goroutine at a time.
package protectbridge
