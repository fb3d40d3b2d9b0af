package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/protect-bridge/bridge"
	"github.com/wippyai/protect-bridge/config"
	"github.com/wippyai/protect-bridge/engine"
)

type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "protectctl",
		Short:         "Drive the socket-protect bridge against wasm protector guests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML configuration file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.file", flags.Lookup("log-file"))

	root.AddCommand(
		a.protectCmd(),
		a.stressCmd(),
		a.emitCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	engine.SetLogger(logger)
	return nil
}

func (a *app) bridgeOptions(m *bridge.Metrics) []bridge.Option {
	opts := []bridge.Option{
		bridge.WithLogger(a.logger),
		bridge.WithRetryPolicy(a.cfg.RetryPolicy()),
		bridge.WithMethod(a.cfg.Protector.Method, a.cfg.Protector.Signature),
	}
	if m != nil {
		opts = append(opts, bridge.WithMetrics(m))
	}
	return opts
}
