// Package fakevm is an in-memory managed runtime for tests.
//
// It records attachments, method calls and strong references so tests can
// observe exactly what a caller did to the runtime.
package fakevm

import (
	"context"
	"sync"
	"sync/atomic"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

// VM is a fake managed runtime.
type VM struct {
	attachErr   error
	failures    int
	attaches    atomic.Int64
	detaches    atomic.Int64
	attachCalls atomic.Int64
	mu          sync.Mutex
}

var _ protectbridge.VM = (*VM)(nil)

// New returns a VM whose attachments always succeed.
func New() *VM {
	return &VM{}
}

// FailAttach makes the next n Attach calls fail with err. A negative n fails
// every call. A nil err fails with a busy error.
func (vm *VM) FailAttach(n int, err error) {
	if err == nil {
		err = errors.Busy(errors.PhaseAttach, "injected")
	}
	vm.mu.Lock()
	vm.failures = n
	vm.attachErr = err
	vm.mu.Unlock()
}

func (vm *VM) Attach(context.Context) (protectbridge.Env, error) {
	vm.attachCalls.Add(1)

	vm.mu.Lock()
	if vm.failures != 0 {
		if vm.failures > 0 {
			vm.failures--
		}
		err := vm.attachErr
		vm.mu.Unlock()
		return nil, err
	}
	vm.mu.Unlock()

	vm.attaches.Add(1)
	return &Env{vm: vm}, nil
}

func (vm *VM) Detach(env protectbridge.Env) error {
	e, ok := env.(*Env)
	if !ok || e.vm != vm {
		return errors.InvalidInput(errors.PhaseAttach, "foreign env")
	}
	if !e.detached.CompareAndSwap(false, true) {
		return errors.InvalidInput(errors.PhaseAttach, "env already detached")
	}
	vm.detaches.Add(1)
	return nil
}

func (vm *VM) Attached(ctx context.Context) (protectbridge.Env, bool) {
	env, ok := protectbridge.EnvFrom(ctx)
	if !ok {
		return nil, false
	}
	e, ok := env.(*Env)
	if !ok || e.vm != vm || e.detached.Load() {
		return nil, false
	}
	return e, true
}

// AttachCalls counts Attach calls, including failed ones.
func (vm *VM) AttachCalls() int64 { return vm.attachCalls.Load() }

// Attaches counts successful attachments.
func (vm *VM) Attaches() int64 { return vm.attaches.Load() }

// Detaches counts detachments.
func (vm *VM) Detaches() int64 { return vm.detaches.Load() }

// Live returns the number of attachments not yet detached.
func (vm *VM) Live() int64 { return vm.attaches.Load() - vm.detaches.Load() }

// AttachContext returns a context bound to a fresh attachment, for callers that
// play the runtime's own thread.
func AttachContext(ctx context.Context, vm *VM) (context.Context, *Env) {
	env, _ := vm.Attach(ctx)
	e := env.(*Env)
	return protectbridge.WithEnv(ctx, e), e
}
