// Command bridgectl exercises the bridge interchange packages: it round-trips
// control-flow graphs through a plugin's memory and runs an interactive
// command console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/x64dbg/bridge/config"
	"github.com/x64dbg/bridge/logging"
	"github.com/x64dbg/bridge/msgqueue"
	"github.com/x64dbg/bridge/plugin"
	"github.com/x64dbg/bridge/pool"
	"github.com/x64dbg/bridge/wire"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=0.2.0"
var version = "0.1.0"

type globalOptions struct {
	configPath string
	logLevel   string
}

// app is the state shared by subcommands once flags are parsed.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func addGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML or YAML config file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
}

func (o *globalOptions) load() (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	pool.SetLogger(logger.Named("pool"))
	wire.SetLogger(logger.Named("wire"))
	msgqueue.SetLogger(logger.Named("msgqueue"))
	plugin.SetLogger(logger.Named("plugin"))
	return &app{cfg: cfg, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Inspect and exercise the debugger bridge interchange layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(newGraphCmd(opts))
	root.AddCommand(newConsoleCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("bridgectl version %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
