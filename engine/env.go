package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

// Env is one caller's attachment to a VM.
type Env struct {
	vm       *VM
	fault    error
	faultMu  sync.Mutex
	id       uuid.UUID
	detached atomic.Bool
}

var _ protectbridge.Env = (*Env)(nil)

// ID identifies the attachment in logs.
func (e *Env) ID() uuid.UUID { return e.id }

func (e *Env) VM() protectbridge.VM { return e.vm }

// method is a guest export checked against a signature.
type method struct {
	owner *Protector
	fn    api.Function
	sig   *Signature
	name  string
}

func (m *method) Name() string      { return m.name }
func (m *method) Signature() string { return m.sig.Text }

// ResolveMethod looks up the export name on a Protector and checks it
// against the WIT function type in signature.
func (e *Env) ResolveMethod(obj protectbridge.Object, name, signature string) (protectbridge.Method, error) {
	p, err := e.protector(errors.PhaseResolve, obj)
	if err != nil {
		return nil, err
	}

	sig, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	fn := p.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseResolve, "export", name)
	}
	def := fn.Definition()
	if !sig.Matches(def) {
		return nil, errors.TypeMismatch(errors.PhaseResolve, name, sig.Core(), formatCore(def.ParamTypes(), def.ResultTypes()))
	}

	return &method{owner: p, fn: fn, sig: sig, name: name}, nil
}

// NewRef takes a strong reference to a Protector and records it in the VM's
// reference table. Releasing the last Ref removes the entry.
func (e *Env) NewRef(obj protectbridge.Object) (*protectbridge.Ref, error) {
	p, err := e.protector(errors.PhaseReference, obj)
	if err != nil {
		return nil, err
	}
	if !p.retain() {
		return nil, errors.Closed(errors.PhaseReference, "protector")
	}

	h, err := e.vm.refs.Insert(ProtectorClass, p)
	if err != nil {
		p.Drop()
		return nil, errors.Wrap(errors.PhaseReference, errors.KindClosed, err, "vm closed")
	}

	refs := e.vm.refs
	return protectbridge.NewRef(p, func(protectbridge.Object) {
		refs.Remove(h)
	}), nil
}

// CallInt invokes m on obj with arg. Calls into one guest are serialized.
// A trap or a fault raised through the host module is returned as a
// callback_fault error and left pending on e.
func (e *Env) CallInt(ctx context.Context, obj protectbridge.Object, m protectbridge.Method, arg int32) (int32, error) {
	if e.detached.Load() {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "env detached")
	}
	if fault := e.Fault(); fault != nil {
		return 0, errors.PendingFault(fault)
	}

	p, err := e.protector(errors.PhaseInvoke, obj)
	if err != nil {
		return 0, err
	}
	fm, ok := m.(*method)
	if !ok || fm.owner != p {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "method was not resolved on this object")
	}
	if len(fm.sig.Params) != 1 || fm.sig.Params[0] != api.ValueTypeI32 ||
		len(fm.sig.Results) != 1 || fm.sig.Results[0] != api.ValueTypeI32 {
		return 0, errors.TypeMismatch(errors.PhaseInvoke, fm.name, "(i32) -> (i32)", fm.sig.Core())
	}

	p.callMu.Lock()
	if p.closed.Load() {
		p.callMu.Unlock()
		return 0, errors.Closed(errors.PhaseInvoke, "protector")
	}
	results, err := fm.fn.Call(protectbridge.WithEnv(ctx, e), api.EncodeI32(arg))
	p.callMu.Unlock()

	if err != nil {
		e.Raise(err)
		return 0, errors.CallbackFault(fm.name, err)
	}
	if fault := e.Fault(); fault != nil {
		return 0, errors.CallbackFault(fm.name, fault)
	}
	return api.DecodeI32(results[0]), nil
}

func (e *Env) Raise(err error) {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	if e.fault == nil {
		e.fault = err
	}
}

func (e *Env) Fault() error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	return e.fault
}

func (e *Env) ClearFault() {
	e.faultMu.Lock()
	e.fault = nil
	e.faultMu.Unlock()
}

func (e *Env) protector(phase errors.Phase, obj protectbridge.Object) (*Protector, error) {
	if e.vm.closed.Load() {
		return nil, errors.Closed(phase, "vm")
	}
	p, ok := obj.(*Protector)
	if !ok || p == nil {
		return nil, errors.InvalidInput(phase, "object is not a protector")
	}
	if p.vm != e.vm {
		return nil, errors.InvalidInput(phase, "protector belongs to another vm")
	}
	if p.closed.Load() {
		return nil, errors.Closed(phase, "protector")
	}
	return p, nil
}
