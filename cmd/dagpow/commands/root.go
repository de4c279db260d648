package commands

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chronodrachma/dagpow/pkg/config"
)

var (
	_config    = config.Default()
	configFile string
	logLevel   string
	powMode    string
	logger     = logrus.NewEntry(logrus.StandardLogger())
)

//RootCmd is the root command for dagpow
var RootCmd = &cobra.Command{
	Use:               "dagpow",
	Short:             "dagash proof-of-work tool",
	SilenceUsage:      true,
	TraverseChildren:  true,
	PersistentPreRunE: loadConfig,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "debug, info, warn, error, fatal, panic")
	RootCmd.PersistentFlags().StringVar(&powMode, "mode", "", "normal, test or fake")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		_config = cfg
	}
	if logLevel != "" {
		_config.LogLevel = logLevel
	}
	if powMode != "" {
		_config.PowMode = config.Mode(powMode)
	}
	if err := _config.Validate(); err != nil {
		return err
	}

	base := logrus.New()
	base.SetOutput(cmd.ErrOrStderr())
	if _config.LogLevel != "" {
		level, err := logrus.ParseLevel(_config.LogLevel)
		if err != nil {
			return err
		}
		base.SetLevel(level)
	}
	logger = logrus.NewEntry(base)

	logger.WithFields(logrus.Fields{
		"cache_dir":   _config.CacheDir,
		"dataset_dir": _config.DatasetDir,
		"pow_mode":    _config.PowMode,
		"threads":     _config.Threads,
	}).Debug("Config")
	return nil
}

func parseBlock(s string) (uint64, error) {
	block, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", s, err)
	}
	return block, nil
}
