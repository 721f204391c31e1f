package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/rtsync/cmd/config"
	"github.com/tphakala/rtsync/cmd/devices"
	"github.com/tphakala/rtsync/cmd/run"
	"github.com/tphakala/rtsync/internal/app"
	"github.com/tphakala/rtsync/internal/buildinfo"
	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand that needs it runs.
func RootCommand(v *viper.Viper, settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "rtsync",
		Short:         "Realtime audio parameter and capture synchronization",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, v, &configFile); err != nil {
		panic(err)
	}

	configCmd := config.Command(v)
	subcommands := []*cobra.Command{
		run.Command(app.Utility, settings),
		run.Command(app.Scope, settings),
		devices.Command(settings),
		configCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// the config command must work with a broken config file
		if cmd.Name() == configCmd.Name() {
			return nil
		}
		return initialize(v, configFile, settings, info)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if !telemetry.Flush(telemetryFlushTimeout) {
			logger.Global().Module("telemetry").Warn("telemetry flush timed out")
		}
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry
// before any subcommand runs.
func initialize(v *viper.Viper, configFile string, settings *conf.Settings, info *buildinfo.Context) error {
	loaded, err := conf.Load(v, configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.Init(settings.Telemetry, telemetry.Options{Version: info.Version()}); err != nil {
		// telemetry is optional; the application runs without it
		logger.Global().Module("telemetry").Warn("telemetry disabled", logger.Error(err))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", "", "Audio backend (malgo, oto, headless)")
	flags.String("device", "", "Audio device name, id or \"default\"")

	bindings := map[string]string{
		"debug":         "debug",
		"audio.backend": "backend",
		"audio.device":  "device",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
