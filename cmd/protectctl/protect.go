package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/protect-bridge/bridge"
	"github.com/wippyai/protect-bridge/engine"
	"github.com/wippyai/protect-bridge/registry"
)

func (a *app) protectCmd() *cobra.Command {
	var (
		policy string
		module string
		fds    []int32
	)

	cmd := &cobra.Command{
		Use:   "protect",
		Short: "Ask a protector guest about one or more descriptors",
		Example: `  protectctl protect --policy list:3,5 --fd 3 --fd 4
  protectctl protect --module policy.wasm --fd 12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(fds) == 0 {
				return fmt.Errorf("at least one --fd is required")
			}
			ctx := cmd.Context()

			wasm, err := guestBytes(policy, module)
			if err != nil {
				return err
			}

			vm, err := engine.NewVM(ctx, a.cfg.EngineConfig())
			if err != nil {
				return err
			}
			defer vm.Close(ctx)

			reg := registry.New(registry.WithLogger(a.logger))
			reg.OnLoad(vm)
			defer reg.OnUnload()

			b := bridge.New(reg, a.bridgeOptions(nil)...)

			p, err := vm.LoadProtector(ctx, wasm)
			if err != nil {
				return err
			}
			err = b.SetProtector(ctx, p)
			p.Close(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, fd := range fds {
				fmt.Fprintf(out, "fd %d: %s\n", fd, b.Decide(ctx, fd))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "allow", "built-in policy: "+policyHelp)
	cmd.Flags().StringVar(&module, "module", "", "load the protector from a wasm file instead")
	cmd.Flags().Int32SliceVar(&fds, "fd", nil, "descriptor to ask about (repeatable)")
	return cmd
}

func (a *app) emitCmd() *cobra.Command {
	var (
		policy string
		output string
	)

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Write a built-in policy as a wasm module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parsePolicy(policy)
			if err != nil {
				return err
			}
			data := m.Encode()
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write module: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "allow", "built-in policy: "+policyHelp)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
