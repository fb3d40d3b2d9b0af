package protectbridge

import "context"

// VM is the entry point of a managed runtime.
type VM interface {
	// Attach joins the caller to the runtime. The returned Env must be
	// passed to Detach when the caller is done.
	Attach(ctx context.Context) (Env, error)

	// Detach releases an Env obtained from Attach.
	Detach(env Env) error

	// Attached returns the Env carried by ctx if it belongs to this VM.
	Attached(ctx context.Context) (Env, bool)
}

// Env is one caller's attachment to a VM. It is not safe for concurrent use.
type Env interface {
	// VM returns the runtime this Env is attached to.
	VM() VM

	// ResolveMethod looks up name on obj's type and checks it against
	// signature, a WIT function type such as "func(fd: s32) -> s32".
	ResolveMethod(obj Object, name, signature string) (Method, error)

	// NewRef takes a strong reference to obj.
	NewRef(obj Object) (*Ref, error)

	// CallInt invokes m on obj with a single integer argument.
	// A fault raised by the callee is returned as an error and also left
	// pending on the Env until ClearFault.
	CallInt(ctx context.Context, obj Object, m Method, arg int32) (int32, error)

	// Raise marks a fault as pending on the Env.
	Raise(err error)

	// Fault returns the pending fault, if any.
	Fault() error

	// ClearFault discards the pending fault.
	ClearFault()
}

// Object is a value owned by the managed runtime.
type Object interface {
	// Class names the object's type for diagnostics.
	Class() string
}

// Method is a resolved invocation target on an Object's type.
type Method interface {
	Name() string
	Signature() string
}

type envKey struct{}

// WithEnv returns a context carrying env.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the Env carried by ctx.
func EnvFrom(ctx context.Context) (Env, bool) {
	if ctx == nil {
		return nil, false
	}
	env, ok := ctx.Value(envKey{}).(Env)
	return env, ok && env != nil
}
