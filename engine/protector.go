package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	protectbridge "github.com/wippyai/protect-bridge"
)

// ProtectorClass is the Class of every guest-backed protector.
const ProtectorClass = "engine.Protector"

// Protector is an instantiated protector guest.
//
// The instance stays open while the owner reference from LoadProtector or
// any strong reference taken through Env.NewRef is live.
type Protector struct {
	vm       *VM
	module   api.Module
	compiled wazero.CompiledModule
	name     string
	refs     atomic.Int64
	callMu   sync.Mutex
	owner    sync.Once
	closed   atomic.Bool
}

var _ protectbridge.Object = (*Protector)(nil)

func (p *Protector) Class() string { return ProtectorClass }

// Name returns the unique module name of the guest instance.
func (p *Protector) Name() string { return p.name }

// Closed reports whether the guest instance has been closed.
func (p *Protector) Closed() bool { return p.closed.Load() }

// Close gives up the owner reference. The guest instance is closed once no
// strong reference remains.
func (p *Protector) Close(ctx context.Context) error {
	var err error
	p.owner.Do(func() {
		err = p.release(ctx)
	})
	return err
}

// Drop releases one strong reference when its table entry is removed.
func (p *Protector) Drop() {
	if err := p.release(context.Background()); err != nil {
		Logger().Warn("close protector", zap.String("name", p.name), zap.Error(err))
	}
}

func (p *Protector) retain() bool {
	for {
		n := p.refs.Load()
		if n <= 0 {
			return false
		}
		if p.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *Protector) release(ctx context.Context) error {
	if p.refs.Add(-1) != 0 {
		return nil
	}
	p.closed.Store(true)

	// Wait for an in-flight call to finish before closing the instance.
	p.callMu.Lock()
	defer p.callMu.Unlock()

	Logger().Debug("protector closed", zap.String("name", p.name))
	err := p.module.Close(ctx)
	if cerr := p.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
