package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"acoustic1d/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "acoustic1d",
		Short:         "Explicit 1D linear acoustics with adaptive CFL time stepping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML settings file")
	pf.String("device", "cpu", "compute device: cpu or opencl")
	pf.Int("group-size", 0, "work-group size (0 = half the stored cells)")
	pf.Int("mx", 100, "number of interior cells")
	pf.String("boundary", "wall", "boundary policy: outflow, wall or periodic")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error, fatal or panic")

	root.AddCommand(newRunCmd(opts), newPlanCmd(opts), newVersionCmd())
	return root
}

// loadSettings merges defaults, file, environment and the command's flags.
func loadSettings(cmd *cobra.Command, opts *rootOptions) (config.Settings, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Settings{}, err
	}
	return config.Load(v, opts.configPath)
}

func setupLogger(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
