package fakevm

import (
	"sync/atomic"

	protectbridge "github.com/wippyai/protect-bridge"
)

// Object is a fake protector.
type Object struct {
	fn     func(int32) (int32, error)
	refErr error
	name   string
	method string
	calls  atomic.Int64
	taken  atomic.Int64
	live   atomic.Int64
}

var _ protectbridge.Object = (*Object)(nil)

// NewObject returns an object whose "bypass" method runs fn.
func NewObject(name string, fn func(fd int32) (int32, error)) *Object {
	return &Object{name: name, method: "bypass", fn: fn}
}

// Returning returns an object whose bypass always answers v.
func Returning(name string, v int32) *Object {
	return NewObject(name, func(int32) (int32, error) { return v, nil })
}

// Faulting returns an object whose bypass always raises err.
func Faulting(name string, err error) *Object {
	return NewObject(name, func(int32) (int32, error) { return 0, err })
}

// Panicking returns an object whose bypass panics with v.
func Panicking(name string, v any) *Object {
	return NewObject(name, func(int32) (int32, error) { panic(v) })
}

// WithoutMethod returns an object that has no bypass method.
func WithoutMethod(name string) *Object {
	return &Object{name: name}
}

// FailRefs makes NewRef on o fail with err.
func (o *Object) FailRefs(err error) *Object {
	o.refErr = err
	return o
}

func (o *Object) Class() string { return "fakevm.Object(" + o.name + ")" }

// Calls counts invocations of the method.
func (o *Object) Calls() int64 { return o.calls.Load() }

// RefsTaken counts strong references ever taken.
func (o *Object) RefsTaken() int64 { return o.taken.Load() }

// LiveRefs counts strong references not yet released.
func (o *Object) LiveRefs() int64 { return o.live.Load() }

// Released reports whether at least one reference was taken and all were released.
func (o *Object) Released() bool { return o.taken.Load() > 0 && o.live.Load() == 0 }
