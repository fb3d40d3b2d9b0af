package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "protectctl (unknown)")
				return
			}
			fmt.Fprintf(out, "protectctl %s\n", moduleVersion(info.Main))
			for _, dep := range info.Deps {
				if dep.Path == "github.com/tetratelabs/wazero" {
					fmt.Fprintf(out, "wazero %s\n", moduleVersion(*dep))
				}
			}
			fmt.Fprintf(out, "go %s\n", info.GoVersion)
		},
	}
}

func moduleVersion(m debug.Module) string {
	if m.Replace != nil {
		return moduleVersion(*m.Replace)
	}
	if m.Version == "" {
		return "(devel)"
	}
	return m.Version
}
