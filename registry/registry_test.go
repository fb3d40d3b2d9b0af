package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	protectbridge "github.com/wippyai/protect-bridge"
)

type stubVM struct{ name string }

func (*stubVM) Attach(context.Context) (protectbridge.Env, error) { return nil, nil }
func (*stubVM) Detach(protectbridge.Env) error                    { return nil }
func (*stubVM) Attached(context.Context) (protectbridge.Env, bool) {
	return nil, false
}

func TestRegistry_EmptyByDefault(t *testing.T) {
	r := New()
	vm, ok := r.Get()
	assert.False(t, ok)
	assert.Nil(t, vm)
}

func TestRegistry_LoadUnload(t *testing.T) {
	r := New()
	vm := &stubVM{name: "a"}

	r.OnLoad(vm)
	got, ok := r.Get()
	require.True(t, ok)
	assert.Same(t, vm, got)

	r.OnUnload()
	_, ok = r.Get()
	assert.False(t, ok)

	// Idempotent.
	r.OnUnload()
	_, ok = r.Get()
	assert.False(t, ok)
}

func TestRegistry_SecondLoadOverwrites(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(WithLogger(zap.New(core)))

	first, second := &stubVM{name: "a"}, &stubVM{name: "b"}
	r.OnLoad(first)
	r.OnLoad(second)

	got, ok := r.Get()
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, logs.FilterMessage("runtime handle replaced without unload").Len())
}

func TestRegistry_HooksRunBeforeClear(t *testing.T) {
	r := New()
	r.OnLoad(&stubVM{})

	var order []string
	r.OnUnloadHook(func() {
		_, ok := r.Get()
		assert.True(t, ok, "hook should still see the runtime")
		order = append(order, "first")
	})
	r.OnUnloadHook(func() { order = append(order, "second") })
	r.OnUnloadHook(nil)

	r.OnUnload()
	assert.Equal(t, []string{"first", "second"}, order)

	r.OnUnload()
	assert.Len(t, order, 2, "hooks must not run without a loaded runtime")

	r.OnLoad(&stubVM{})
	r.OnUnload()
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestRegistry_HookMayRegisterHooks(t *testing.T) {
	r := New()
	r.OnLoad(&stubVM{})

	calls := 0
	r.OnUnloadHook(func() {
		calls++
		r.OnUnloadHook(func() {})
	})

	require.NotPanics(t, r.OnUnload)
	assert.Equal(t, 1, calls)
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if vm, ok := r.Get(); ok {
					assert.NotNil(t, vm)
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		r.OnLoad(&stubVM{})
		r.OnUnload()
	}
	wg.Wait()
}
