package bridge

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/protect-bridge/errors"
	"github.com/wippyai/protect-bridge/internal/fakevm"
	"github.com/wippyai/protect-bridge/registry"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, Backoff: 0}

func setup(t *testing.T) (*registry.Registry, *fakevm.VM, *Bridge) {
	t.Helper()
	reg := registry.New()
	vm := fakevm.New()
	reg.OnLoad(vm)
	return reg, vm, New(reg, WithRetryPolicy(fastRetry))
}

func TestProtect_NegativeFD(t *testing.T) {
	_, vm, b := setup(t)
	p := fakevm.Returning("p", 1)
	require.NoError(t, b.SetProtector(context.Background(), p))
	attachesBefore := vm.AttachCalls()

	for _, fd := range []int32{-1, -42, -2147483648} {
		assert.False(t, b.Protect(context.Background(), fd))
		assert.Equal(t, OutcomeInvalidInput, b.Decide(context.Background(), fd))
	}
	assert.Equal(t, attachesBefore, vm.AttachCalls(), "negative fd must not attach")
	assert.Zero(t, p.Calls(), "negative fd must not invoke")
}

func TestProtect_NoRuntime(t *testing.T) {
	reg := registry.New()
	b := New(reg)

	assert.Equal(t, OutcomeUnavailableRuntime, b.Decide(context.Background(), 3))

	vm := fakevm.New()
	reg.OnLoad(vm)
	require.NoError(t, b.SetProtector(context.Background(), fakevm.Returning("p", 1)))
	require.True(t, b.Protect(context.Background(), 3))

	reg.OnUnload()
	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeUnavailableRuntime, b.Decide(context.Background(), 3))
	}
}

func TestProtect_ResetReleases(t *testing.T) {
	_, _, b := setup(t)
	p := fakevm.Returning("p", 1)

	require.NoError(t, b.SetProtector(context.Background(), p))
	require.True(t, b.Protect(context.Background(), 5))

	b.Reset()
	assert.Equal(t, OutcomeNoTarget, b.Decide(context.Background(), 5))
	assert.True(t, p.Released(), "reset must release the protector")

	// Reset on an empty bridge is a no-op.
	b.Reset()
	assert.False(t, b.Protect(context.Background(), 5))
}

func TestProtect_NeverSet(t *testing.T) {
	_, _, b := setup(t)
	assert.Equal(t, OutcomeNoTarget, b.Decide(context.Background(), 5))
}

func TestProtect_ReplaceInvokesNewest(t *testing.T) {
	_, _, b := setup(t)
	p1 := fakevm.Returning("p1", 0)
	p2 := fakevm.Returning("p2", 1)

	require.NoError(t, b.SetProtector(context.Background(), p1))
	require.NoError(t, b.SetProtector(context.Background(), p2))

	for i := 0; i < 10; i++ {
		assert.True(t, b.Protect(context.Background(), int32(i)))
	}
	assert.Zero(t, p1.Calls(), "replaced protector must not be invoked")
	assert.Equal(t, int64(10), p2.Calls())
	assert.True(t, p1.Released())
	assert.Equal(t, int64(1), p2.LiveRefs())
}

func TestProtect_FaultLeavesNoState(t *testing.T) {
	_, vm, b := setup(t)
	ctx, env := fakevm.AttachContext(context.Background(), vm)

	require.NoError(t, b.SetProtector(ctx, fakevm.Faulting("bad", stderrors.New("boom"))))
	assert.Equal(t, OutcomeCallbackFault, b.Decide(ctx, 7))
	assert.NoError(t, env.Fault(), "fault must be cleared on the caller's env")

	require.NoError(t, b.SetProtector(ctx, fakevm.Returning("good", 1)))
	assert.True(t, b.Protect(ctx, 7), "a later call on the same env must succeed")
}

func TestProtect_Panic(t *testing.T) {
	_, vm, b := setup(t)
	ctx, env := fakevm.AttachContext(context.Background(), vm)

	require.NoError(t, b.SetProtector(ctx, fakevm.Panicking("panic", "kaboom")))
	require.NotPanics(t, func() {
		assert.Equal(t, OutcomeCallbackFault, b.Decide(ctx, 1))
	})
	assert.NoError(t, env.Fault())
}

func TestProtect_ClearsUnrelatedFault(t *testing.T) {
	_, vm, b := setup(t)
	ctx, env := fakevm.AttachContext(context.Background(), vm)
	require.NoError(t, b.SetProtector(ctx, fakevm.Returning("p", 1)))

	env.Raise(stderrors.New("left over"))
	assert.True(t, b.Protect(ctx, 1))
}

func TestProtect_TransientAttachment(t *testing.T) {
	_, vm, b := setup(t)
	require.NoError(t, b.SetProtector(context.Background(), fakevm.Returning("p", 1)))
	attaches := vm.Attaches()

	assert.True(t, b.Protect(context.Background(), 1))
	assert.Equal(t, attaches+1, vm.Attaches())
	assert.Zero(t, vm.Live(), "transient attachment must be detached")

	// Detach also happens on failure paths.
	b.Reset()
	assert.False(t, b.Protect(context.Background(), 1))
	assert.Zero(t, vm.Live())
}

func TestProtect_AlreadyAttached(t *testing.T) {
	_, vm, b := setup(t)
	ctx, env := fakevm.AttachContext(context.Background(), vm)
	require.NoError(t, b.SetProtector(ctx, fakevm.Returning("p", 1)))

	attaches, detaches := vm.Attaches(), vm.Detaches()
	assert.True(t, b.Protect(ctx, 1))
	assert.Equal(t, attaches, vm.Attaches(), "must reuse the caller's attachment")
	assert.Equal(t, detaches, vm.Detaches(), "must not detach the caller's attachment")

	_, still := vm.Attached(ctx)
	assert.True(t, still)
	require.NoError(t, vm.Detach(env))
}

func TestProtect_AttachExhausted(t *testing.T) {
	_, vm, b := setup(t)
	require.NoError(t, b.SetProtector(context.Background(), fakevm.Returning("p", 1)))

	vm.FailAttach(-1, nil)
	before := vm.AttachCalls()
	assert.Equal(t, OutcomeAttachFailed, b.Decide(context.Background(), 1))
	assert.Equal(t, before+3, vm.AttachCalls())
}

func TestProtect_AttachRecovers(t *testing.T) {
	_, vm, b := setup(t)
	p := fakevm.Returning("p", 1)
	require.NoError(t, b.SetProtector(context.Background(), p))

	vm.FailAttach(2, nil)
	assert.True(t, b.Protect(context.Background(), 1))
	assert.Equal(t, int64(1), p.Calls())
}

func TestProtect_AttachClosedNotRetried(t *testing.T) {
	_, vm, b := setup(t)
	vm.FailAttach(-1, errors.Closed(errors.PhaseAttach, "vm"))

	before := vm.AttachCalls()
	assert.Equal(t, OutcomeAttachFailed, b.Decide(context.Background(), 1))
	assert.Equal(t, before+1, vm.AttachCalls())
}

func TestSetProtector_UnresolvedMethod(t *testing.T) {
	_, _, b := setup(t)
	good := fakevm.Returning("good", 1)
	bad := fakevm.WithoutMethod("bad")

	require.NoError(t, b.SetProtector(context.Background(), good))
	require.NoError(t, b.SetProtector(context.Background(), bad), "unresolved method is not an error")

	assert.True(t, good.Released(), "previous protector must still be replaced")
	assert.Equal(t, int64(1), bad.LiveRefs(), "new protector is held even without a method")
	assert.Equal(t, OutcomeNoTarget, b.Decide(context.Background(), 1))

	b.Reset()
	assert.True(t, bad.Released())
}

func TestSetProtector_Errors(t *testing.T) {
	t.Run("nil object", func(t *testing.T) {
		_, _, b := setup(t)
		err := b.SetProtector(context.Background(), nil)
		assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	})

	t.Run("no runtime", func(t *testing.T) {
		b := New(registry.New())
		err := b.SetProtector(context.Background(), fakevm.Returning("p", 1))
		assert.Equal(t, errors.KindUnavailableRuntime, errors.KindOf(err))
	})

	t.Run("attach exhausted", func(t *testing.T) {
		_, vm, b := setup(t)
		vm.FailAttach(-1, nil)
		err := b.SetProtector(context.Background(), fakevm.Returning("p", 1))
		assert.Equal(t, errors.KindAttachFailed, errors.KindOf(err))
	})

	t.Run("ref failure keeps previous", func(t *testing.T) {
		_, _, b := setup(t)
		prev := fakevm.Returning("prev", 1)
		require.NoError(t, b.SetProtector(context.Background(), prev))

		next := fakevm.Returning("next", 0).FailRefs(errors.Closed(errors.PhaseReference, "object"))
		err := b.SetProtector(context.Background(), next)
		assert.Equal(t, errors.KindClosed, errors.KindOf(err))

		assert.True(t, b.Protect(context.Background(), 1), "previous protector stays installed")
		assert.Equal(t, int64(1), prev.LiveRefs())
	})
}

func TestBridge_UnloadReleases(t *testing.T) {
	reg, _, b := setup(t)
	p := fakevm.Returning("p", 1)
	require.NoError(t, b.SetProtector(context.Background(), p))

	reg.OnUnload()
	assert.True(t, p.Released())
	assert.False(t, b.Protect(context.Background(), 1))
}

func TestBridge_NilContext(t *testing.T) {
	_, _, b := setup(t)
	//nolint:staticcheck // nil context is tolerated
	require.NoError(t, b.SetProtector(nil, fakevm.Returning("p", 1)))
	//nolint:staticcheck
	assert.True(t, b.Protect(nil, 1))
}

func TestScenario(t *testing.T) {
	reg := registry.New()
	b := New(reg, WithRetryPolicy(fastRetry))
	reg.OnLoad(fakevm.New())

	p := fakevm.NewObject("p", func(fd int32) (int32, error) {
		if fd == 42 {
			return 1, nil
		}
		return 0, nil
	})
	require.NoError(t, b.SetProtector(context.Background(), p))
	assert.True(t, b.Protect(context.Background(), 42))

	b.Reset()
	assert.False(t, b.Protect(context.Background(), 42))

	reg.OnUnload()
	assert.False(t, b.Protect(context.Background(), 42))
}

func TestConcurrentProtectWithChurn(t *testing.T) {
	_, vm, b := setup(t)
	allow := fakevm.Returning("allow", 1)
	deny := fakevm.Returning("deny", 0)

	const workers = 8
	const calls = 1000

	require.NoError(t, b.SetProtector(context.Background(), deny))
	require.NoError(t, b.SetProtector(context.Background(), allow))

	var done atomic.Bool
	var g errgroup.Group
	var seen [OutcomeCallbackFault + 1]atomic.Int64

	g.Go(func() error {
		ctx, _ := fakevm.AttachContext(context.Background(), vm)
		for i := 0; !done.Load(); i++ {
			switch i % 3 {
			case 0:
				if err := b.SetProtector(ctx, allow); err != nil {
					return err
				}
			case 1:
				if err := b.SetProtector(ctx, deny); err != nil {
					return err
				}
			default:
				b.Reset()
			}
		}
		return nil
	})

	var workersDone errgroup.Group
	for w := 0; w < workers; w++ {
		workersDone.Go(func() error {
			for i := 0; i < calls; i++ {
				out := b.Decide(context.Background(), int32(i))
				seen[out].Add(1)
				switch out {
				case OutcomeProtected, OutcomeDenied, OutcomeNoTarget:
				default:
					return stderrors.New("inconsistent outcome " + out.String())
				}
			}
			return nil
		})
	}

	errc := make(chan error, 1)
	go func() { errc <- workersDone.Wait() }()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("protect calls deadlocked")
	}
	done.Store(true)
	require.NoError(t, g.Wait())

	var total int64
	for i := range seen {
		total += seen[i].Load()
	}
	assert.Equal(t, int64(workers*calls), total)

	b.Reset()
	assert.True(t, allow.Released())
	assert.True(t, deny.Released())
	assert.Equal(t, int64(1), vm.Live(), "only the churn goroutine's attachment remains")
}
