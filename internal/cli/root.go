// Package cli implements the taskgraph command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/Swind/go-task-graph/internal/config"
	"github.com/Swind/go-task-graph/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries state shared by the subcommands of one root command.
type app struct {
	v          *viper.Viper
	configPath string

	cfg     config.Config
	logger  *slog.Logger
	logFile io.Closer
}

// NewRootCmd creates the root cobra command for the taskgraph CLI.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Run task dependency graphs on a work-stealing scheduler",
		Long: `taskgraph executes graphs of tasks declared in YAML or HCL manifests.
Each task starts once all of its dependencies have finished, on a pool of
workers that steal from each other when idle.

Settings come from defaults, an optional --config file, TASKGRAPH_* environment
variables and flags, in increasing order of precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Write logs to this size-rotated file instead of stderr")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newRunCmd(a),
		newBenchCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	w := cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		fw := logging.NewFileWriter(logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		a.logFile = fw
		w = fw
	}
	a.logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, w)
	return nil
}

// close releases the log file, if any.
func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}
