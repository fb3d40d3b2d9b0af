package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

// HostModuleName is the import module guests use to reach the host.
const HostModuleName = "protector"

// GuestFault is the fault a guest reports through the raise import.
type GuestFault struct {
	Guest string
	Code  int32
}

func (f *GuestFault) Error() string {
	return fmt.Sprintf("guest %s raised fault %d", f.Guest, f.Code)
}

func (vm *VM) instantiateHost(ctx context.Context) error {
	i32 := api.ValueTypeI32
	_, err := vm.runtime.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostRaise), []api.ValueType{i32}, nil).
		Export("raise").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostLog), []api.ValueType{i32, i32}, nil).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		return errors.Load("instantiate host module", err)
	}
	return nil
}

// hostRaise marks a fault on the Env the call runs under.
// Calls made without an Env are logged and otherwise ignored.
func hostRaise(ctx context.Context, mod api.Module, stack []uint64) {
	fault := &GuestFault{Guest: mod.Name(), Code: api.DecodeI32(stack[0])}
	env, ok := protectbridge.EnvFrom(ctx)
	if !ok {
		Logger().Warn("guest raised fault outside an attachment", zap.Error(fault))
		return
	}
	env.Raise(fault)
}

func hostLog(_ context.Context, mod api.Module, stack []uint64) {
	Logger().Debug("guest decision",
		zap.String("guest", mod.Name()),
		zap.Int32("fd", api.DecodeI32(stack[0])),
		zap.Int32("verdict", api.DecodeI32(stack[1])))
}
