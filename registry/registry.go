// Package registry holds the process-wide handle to the managed runtime.
//
// A Registry is an injectable service: the host creates one, calls OnLoad
// when the runtime becomes available and OnUnload when it goes away, and
// passes it to every component that needs the runtime. Absence of a runtime
// is a normal state reported by Get.
package registry

import (
	"sync"

	"go.uber.org/zap"

	protectbridge "github.com/wippyai/protect-bridge"
)

// Registry stores the current managed runtime handle.
type Registry struct {
	vm     protectbridge.VM
	hooks  []func()
	logger *zap.Logger
	mu     sync.RWMutex
	hookMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	return r
}

// OnLoad stores vm as the current runtime. A second call replaces the handle.
func (r *Registry) OnLoad(vm protectbridge.VM) {
	r.mu.Lock()
	prev := r.vm
	r.vm = vm
	r.mu.Unlock()

	if prev != nil {
		r.logger.Warn("runtime handle replaced without unload")
	} else {
		r.logger.Debug("runtime loaded")
	}
}

// OnUnload runs the unload hooks and clears the handle. Hooks run before the
// handle is cleared so they may still reach the runtime. Calling OnUnload
// without a loaded runtime is a no-op.
func (r *Registry) OnUnload() {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.RLock()
	loaded := r.vm != nil
	r.mu.RUnlock()
	if !loaded {
		return
	}

	for _, fn := range r.snapshotHooks() {
		fn()
	}

	r.mu.Lock()
	r.vm = nil
	r.mu.Unlock()
	r.logger.Debug("runtime unloaded")
}

// Get returns the current runtime, or false when none is loaded.
func (r *Registry) Get() (protectbridge.VM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vm, r.vm != nil
}

// OnUnloadHook registers fn to run on every OnUnload, in registration order.
func (r *Registry) OnUnloadHook(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

func (r *Registry) snapshotHooks() []func() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]func(){}, r.hooks...)
}
