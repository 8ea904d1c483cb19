package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stream-anomaly-detector/config"
)

type options struct {
	configPath string
	windowSize int
	threshold  float64

	cfg    *config.Config
	logger *logrus.Logger
}

// NewRootCommand builds the command tree. Configuration is loaded before any
// subcommand runs; --window and --threshold override the loaded values.
func NewRootCommand() *cobra.Command {
	opts := &options{logger: logrus.StandardLogger()}

	root := &cobra.Command{
		Use:   "anomalyd",
		Short: "Rolling z-score anomaly detection for streams of samples",
		Long: `anomalyd classifies every incoming sample as normal or anomalous by
comparing it with the mean and standard deviation of the previous samples in
a fixed-size rolling window.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the config file")
	root.PersistentFlags().IntVarP(&opts.windowSize, "window", "w", 0, "rolling window size (overrides config)")
	root.PersistentFlags().Float64VarP(&opts.threshold, "threshold", "t", 0, "z-score threshold (overrides config)")

	root.AddCommand(newRunCommand(opts), newReplayCommand(opts))
	return root
}

func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("window") {
		cfg.Detector.WindowSize = o.windowSize
	}
	if flags.Changed("threshold") {
		cfg.Detector.Threshold = o.threshold
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "flags")
	}
	if err := cfg.ConfigureLogger(o.logger); err != nil {
		return err
	}

	o.cfg = cfg
	o.logger.WithFields(logrus.Fields{
		"window_size": cfg.Detector.WindowSize,
		"threshold":   cfg.Detector.Threshold,
		"min_history": cfg.Detector.MinHistory,
	}).Debug("configuration loaded")
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
