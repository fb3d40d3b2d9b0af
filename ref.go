package protectbridge

import (
	"sync"
	"sync/atomic"
)

// Ref is a strong reference to a managed Object.
//
// Refs created by Clone share one count with the original. The drop function
// passed to NewRef runs exactly once, when the last Ref sharing the count is
// released. Each Ref may be released once; further calls are no-ops.
type Ref struct {
	shared   *sharedRef
	released atomic.Bool
}

type sharedRef struct {
	obj      Object
	drop     func(Object)
	count    atomic.Int64
	dropOnce sync.Once
}

// NewRef returns a Ref with a count of one. drop may be nil.
func NewRef(obj Object, drop func(Object)) *Ref {
	s := &sharedRef{obj: obj, drop: drop}
	s.count.Store(1)
	return &Ref{shared: s}
}

// Object returns the referenced object, or nil once r has been released.
func (r *Ref) Object() Object {
	if r == nil || r.released.Load() {
		return nil
	}
	return r.shared.obj
}

// Clone returns a new Ref sharing r's count. It fails if r was released or
// the object has already been dropped.
func (r *Ref) Clone() (*Ref, bool) {
	if r == nil || r.released.Load() {
		return nil, false
	}
	for {
		n := r.shared.count.Load()
		if n <= 0 {
			return nil, false
		}
		if r.shared.count.CompareAndSwap(n, n+1) {
			return &Ref{shared: r.shared}, true
		}
	}
}

// Release gives up r's share. It reports whether this call released r.
func (r *Ref) Release() bool {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return false
	}
	if r.shared.count.Add(-1) == 0 {
		r.shared.dropOnce.Do(func() {
			if r.shared.drop != nil {
				r.shared.drop(r.shared.obj)
			}
		})
	}
	return true
}

// Count returns the number of live Refs sharing r's object.
func (r *Ref) Count() int64 {
	if r == nil {
		return 0
	}
	return r.shared.count.Load()
}
