package fakevm

import (
	"context"
	"sync/atomic"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

// Env is an attachment to a fake VM.
type Env struct {
	vm       *VM
	fault    error
	detached atomic.Bool
}

var _ protectbridge.Env = (*Env)(nil)

func (e *Env) VM() protectbridge.VM { return e.vm }

type method struct {
	owner     *Object
	name      string
	signature string
}

func (m *method) Name() string      { return m.name }
func (m *method) Signature() string { return m.signature }

func (e *Env) ResolveMethod(obj protectbridge.Object, name, signature string) (protectbridge.Method, error) {
	o, ok := obj.(*Object)
	if !ok || o == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, "not a fake object")
	}
	if o.fn == nil || name != o.method {
		return nil, errors.NotFound(errors.PhaseResolve, "method", name)
	}
	return &method{owner: o, name: name, signature: signature}, nil
}

func (e *Env) NewRef(obj protectbridge.Object) (*protectbridge.Ref, error) {
	o, ok := obj.(*Object)
	if !ok || o == nil {
		return nil, errors.InvalidInput(errors.PhaseReference, "not a fake object")
	}
	if o.refErr != nil {
		return nil, o.refErr
	}
	o.taken.Add(1)
	o.live.Add(1)
	return protectbridge.NewRef(o, func(protectbridge.Object) {
		o.live.Add(-1)
	}), nil
}

// CallInt runs the object's function. An error from the function is raised
// on e; a panic propagates to the caller.
func (e *Env) CallInt(_ context.Context, obj protectbridge.Object, m protectbridge.Method, arg int32) (int32, error) {
	if e.fault != nil {
		return 0, errors.PendingFault(e.fault)
	}
	o, ok := obj.(*Object)
	fm, mok := m.(*method)
	if !ok || !mok || fm.owner != o {
		return 0, errors.InvalidInput(errors.PhaseInvoke, "method was not resolved on this object")
	}

	o.calls.Add(1)
	v, err := o.fn(arg)
	if err != nil {
		e.fault = err
		return 0, errors.CallbackFault(fm.name, err)
	}
	return v, nil
}

func (e *Env) Raise(err error) {
	if e.fault == nil {
		e.fault = err
	}
}

func (e *Env) Fault() error { return e.fault }

func (e *Env) ClearFault() { e.fault = nil }
