package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
	"github.com/wippyai/protect-bridge/resource"
)

// DefaultMaxAttachments bounds concurrent attachments when Config leaves it unset.
const DefaultMaxAttachments = 64

// Config holds configuration for VM creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// MaxAttachments caps the number of Envs attached at once.
	// Attach fails with a busy error while the cap is reached.
	// 0 means DefaultMaxAttachments.
	MaxAttachments int64
}

// VM is a wazero-backed managed runtime hosting protector guests.
type VM struct {
	runtime  wazero.Runtime
	sem      *semaphore.Weighted
	refs     *resource.Table
	attached atomic.Int64
	closed   atomic.Bool
	closeMu  sync.Mutex
}

var _ protectbridge.VM = (*VM)(nil)

// NewVM creates a runtime and instantiates the protector host module.
func NewVM(ctx context.Context, cfg *Config) (*VM, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	maxAttach := int64(DefaultMaxAttachments)

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.MaxAttachments < 0 {
			return nil, errors.InvalidInput(errors.PhaseLoad, "max attachments must not be negative")
		}
		if cfg.MaxAttachments > 0 {
			maxAttach = cfg.MaxAttachments
		}
	}

	vm := &VM{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		sem:     semaphore.NewWeighted(maxAttach),
		refs:    resource.NewTable(),
	}
	vm.refs.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		debugf("ref %s: handle=%d class=%s", e.Type, e.Handle, e.Class)
	}))

	if err := vm.instantiateHost(ctx); err != nil {
		vm.runtime.Close(ctx)
		return nil, err
	}
	return vm, nil
}

// LoadProtector compiles and instantiates a guest module.
// The returned Protector holds one owner reference released by Close.
func (vm *VM) LoadProtector(ctx context.Context, wasm []byte) (*Protector, error) {
	if vm.closed.Load() {
		return nil, errors.Closed(errors.PhaseLoad, "vm")
	}

	compiled, err := vm.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest", err)
	}

	name := "protector-" + uuid.NewString()
	mod, err := vm.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		compiled.Close(ctx)
		return nil, errors.Load("instantiate guest", err)
	}

	p := &Protector{vm: vm, name: name, module: mod, compiled: compiled}
	p.refs.Store(1)
	Logger().Debug("protector loaded", zap.String("name", name))
	return p, nil
}

// Attach joins the caller to the VM. It fails with a busy error when the
// attachment cap is reached and with a closed error after Close.
func (vm *VM) Attach(ctx context.Context) (protectbridge.Env, error) {
	if vm.closed.Load() {
		return nil, errors.Closed(errors.PhaseAttach, "vm")
	}
	if !vm.sem.TryAcquire(1) {
		return nil, errors.Busy(errors.PhaseAttach, "attachment limit reached")
	}
	if vm.closed.Load() {
		vm.sem.Release(1)
		return nil, errors.Closed(errors.PhaseAttach, "vm")
	}

	env := &Env{vm: vm, id: uuid.New()}
	n := vm.attached.Add(1)
	debugf("attach env=%s attached=%d", env.id, n)
	return env, nil
}

// Detach releases an Env obtained from Attach.
func (vm *VM) Detach(env protectbridge.Env) error {
	e, ok := env.(*Env)
	if !ok || e.vm != vm {
		return errors.InvalidInput(errors.PhaseAttach, "env does not belong to this vm")
	}
	if !e.detached.CompareAndSwap(false, true) {
		return errors.InvalidInput(errors.PhaseAttach, "env already detached")
	}

	n := vm.attached.Add(-1)
	vm.sem.Release(1)
	debugf("detach env=%s attached=%d", e.id, n)
	return nil
}

// Attached returns the Env carried by ctx if it is a live attachment to vm.
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

// Attachments returns the number of Envs currently attached.
func (vm *VM) Attachments() int64 {
	return vm.attached.Load()
}

// Refs returns the number of outstanding strong references.
func (vm *VM) Refs() int {
	return vm.refs.Len()
}

// Closed reports whether Close has been called.
func (vm *VM) Closed() bool {
	return vm.closed.Load()
}

// Close drops every outstanding strong reference and closes the runtime.
// It is safe to call more than once.
func (vm *VM) Close(ctx context.Context) error {
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()

	if !vm.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := vm.refs.Close(); err != nil {
		return err
	}
	Logger().Debug("vm closed", zap.Int64("attached", vm.attached.Load()))
	return vm.runtime.Close(ctx)
}
