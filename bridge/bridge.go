package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

const (
	// DefaultMethod is the decision method resolved on protectors.
	DefaultMethod = "bypass"
	// DefaultSignature is its WIT function type.
	DefaultSignature = "func(fd: s32) -> s32"
)

// Runtime is where a Bridge finds the managed runtime.
// *registry.Registry implements it.
type Runtime interface {
	Get() (protectbridge.VM, bool)
	OnUnloadHook(fn func())
}

// Bridge calls a protector object owned by the managed runtime.
type Bridge struct {
	rt        Runtime
	logger    *zap.Logger
	metrics   *Metrics
	faultLog  *rate.Limiter
	retry     RetryPolicy
	method    string
	signature string

	mu     sync.RWMutex
	ref    *protectbridge.Ref
	target protectbridge.Method

	nativeOnce sync.Once
	native     uintptr
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRetryPolicy sets the attachment retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(b *Bridge) {
		b.retry = p
	}
}

// WithMetrics records calls into m.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithMethod changes the resolved method name and its WIT signature.
func WithMethod(name, signature string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.method = name
		}
		if signature != "" {
			b.signature = signature
		}
	}
}

// WithFaultLogLimit throttles callback fault warnings to limit per second
// with the given burst.
func WithFaultLogLimit(limit rate.Limit, burst int) Option {
	return func(b *Bridge) {
		b.faultLog = rate.NewLimiter(limit, burst)
	}
}

// New creates a Bridge reading the runtime from rt. The bridge releases its
// protector when rt unloads the runtime.
func New(rt Runtime, opts ...Option) *Bridge {
	b := &Bridge{
		rt:        rt,
		logger:    zap.NewNop(),
		faultLog:  rate.NewLimiter(rate.Every(time.Second), 5),
		retry:     DefaultRetryPolicy(),
		method:    DefaultMethod,
		signature: DefaultSignature,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("bridge")
	rt.OnUnloadHook(b.Reset)
	return b
}

// SetProtector installs obj as the protector, replacing and releasing the
// previous one.
//
// ctx should carry an Env attached to the current runtime; otherwise the
// call attaches for its own duration. If the decision method cannot be
// resolved on obj, obj is still installed with no method, a warning is
// logged and nil is returned; Protect then answers false. An error means
// the installed protector did not change.
func (b *Bridge) SetProtector(ctx context.Context, obj protectbridge.Object) error {
	if obj == nil {
		return errors.InvalidInput(errors.PhaseReference, "nil protector")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	vm, ok := b.rt.Get()
	if !ok {
		return errors.UnavailableRuntime(errors.PhaseAttach)
	}

	env, attachedHere, err := b.attach(ctx, vm)
	if err != nil {
		return err
	}
	if attachedHere {
		defer b.detach(vm, env)
	}

	method, rerr := env.ResolveMethod(obj, b.method, b.signature)
	if rerr != nil {
		b.logger.Warn("protector method not resolved, protect will answer false",
			zap.String("class", obj.Class()),
			zap.String("method", b.method),
			zap.Error(rerr))
		method = nil
	}

	ref, err := env.NewRef(obj)
	if err != nil {
		return err
	}

	b.mu.Lock()
	prev := b.ref
	b.ref, b.target = ref, method
	b.mu.Unlock()

	prev.Release()
	b.metrics.targetChanged("set", method != nil)
	b.logger.Debug("protector set", zap.String("class", obj.Class()), zap.Bool("resolved", method != nil))
	return nil
}

// Reset releases the installed protector. It is safe to call at any time.
func (b *Bridge) Reset() {
	b.mu.Lock()
	prev := b.ref
	b.ref, b.target = nil, nil
	b.mu.Unlock()

	if prev.Release() {
		b.logger.Debug("protector reset")
	}
	b.metrics.targetChanged("reset", false)
}

// Protect asks the installed protector whether fd should bypass the tunnel.
// It returns false whenever no decision could be obtained.
func (b *Bridge) Protect(ctx context.Context, fd int32) bool {
	return b.Decide(ctx, fd).Protected()
}

// Decide is Protect with the reason for the answer.
func (b *Bridge) Decide(ctx context.Context, fd int32) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	out := b.decide(ctx, fd)
	b.metrics.observeCall(out, time.Since(start))
	return out
}

func (b *Bridge) decide(ctx context.Context, fd int32) Outcome {
	if fd < 0 {
		return OutcomeInvalidInput
	}

	vm, ok := b.rt.Get()
	if !ok {
		return OutcomeUnavailableRuntime
	}

	env, attachedHere, err := b.attach(ctx, vm)
	if err != nil {
		b.logger.Debug("attach failed", zap.Int32("fd", fd), zap.Error(err))
		return OutcomeAttachFailed
	}
	if attachedHere {
		defer b.detach(vm, env)
	}

	ref, method := b.snapshot()
	if ref == nil {
		return OutcomeNoTarget
	}
	defer ref.Release()
	if method == nil {
		return OutcomeNoTarget
	}

	env.ClearFault()
	result, err := invoke(ctx, env, ref.Object(), method, fd)
	if err == nil {
		err = env.Fault()
	}
	if err != nil {
		env.ClearFault()
		if b.faultLog.Allow() {
			b.logger.Warn("protector faulted", zap.Int32("fd", fd), zap.Error(err))
		}
		return OutcomeCallbackFault
	}

	if result != 0 {
		return OutcomeProtected
	}
	return OutcomeDenied
}

// snapshot returns a clone of the installed ref and its method.
// The caller releases the clone.
func (b *Bridge) snapshot() (*protectbridge.Ref, protectbridge.Method) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.ref == nil {
		return nil, nil
	}
	ref, ok := b.ref.Clone()
	if !ok {
		return nil, nil
	}
	return ref, b.target
}

// invoke calls the method, turning a panic into a callback fault.
func invoke(ctx context.Context, env protectbridge.Env, obj protectbridge.Object, m protectbridge.Method, fd int32) (result int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = 0, errors.CallbackFault(m.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	if obj == nil {
		return 0, errors.NoTarget("protector released")
	}
	return env.CallInt(protectbridge.WithEnv(ctx, env), obj, m, fd)
}

// attach returns the Env carried by ctx if it belongs to vm, otherwise a new
// attachment that the caller must detach.
func (b *Bridge) attach(ctx context.Context, vm protectbridge.VM) (protectbridge.Env, bool, error) {
	if env, ok := vm.Attached(ctx); ok {
		return env, false, nil
	}

	env, err := b.retry.attach(ctx, vm, func(attempt int, err error) {
		b.metrics.attachRetry()
		b.logger.Debug("attach retry", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, false, err
	}
	return env, true, nil
}

func (b *Bridge) detach(vm protectbridge.VM, env protectbridge.Env) {
	if err := vm.Detach(env); err != nil {
		b.logger.Warn("detach failed", zap.Error(err))
	}
}
