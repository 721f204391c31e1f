// Package run provides the commands that start an application profile.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tphakala/rtsync/internal/app"
	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/ui"
)

const uiLogFile = "logs/rtsync.log"

// Command creates the command that runs the profile built by newProfile.
func Command(newProfile func() app.Profile, settings *conf.Settings) *cobra.Command {
	profile := newProfile()
	var noUI, withHTTP, withMQTT bool
	var listen string

	cmd := &cobra.Command{
		Use:   profile.Name,
		Short: fmt.Sprintf("Run the %s application", profile.Name),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("no-ui") {
				settings.UI.Enabled = !noUI
			}
			if flags.Changed("http") {
				settings.HTTP.Enabled = withHTTP
			}
			if flags.Changed("listen") {
				settings.HTTP.Listen = listen
			}
			if flags.Changed("mqtt") {
				settings.MQTT.Enabled = withMQTT
			}
			return Run(cmd.Context(), newProfile(), settings)
		},
	}

	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Run without the terminal interface")
	cmd.Flags().BoolVar(&withHTTP, "http", false, "Enable the HTTP control API")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address")
	cmd.Flags().BoolVar(&withMQTT, "mqtt", false, "Enable the MQTT control surface")
	return cmd
}

// Run starts profile and blocks until it ends or the process is signalled.
func Run(ctx context.Context, profile app.Profile, settings *conf.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("app")
	opts := app.Options{Settings: settings, Profile: profile, Logger: log}

	if settings.UI.Enabled {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			log.Warn("stdin or stdout is not a terminal, running without the UI")
			settings.UI.Enabled = false
		} else {
			// the UI owns the screen, so logs go to a file
			if err := redirectLogs(settings); err != nil {
				return err
			}
			log = logger.Global().Module("app")
			opts.Logger = log

			t, err := ui.OpenTerminal(os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			defer func() {
				if err := t.Restore(); err != nil {
					log.Warn("failed to restore terminal", logger.Error(err))
				}
			}()
			opts.UIInput = t.Input()
			opts.UIOutput = t.Output()
			opts.UISize = t.Size
		}
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	rotateCtx, stopRotate := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		rotateOnHangup(rotateCtx, hangup, func() error { return logger.Global().Rotate() }, log)
	})
	defer func() {
		signal.Stop(hangup)
		stopRotate()
		wg.Wait()
	}()

	a, err := app.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown error", logger.Error(err))
		}
	}()
	return a.Run(ctx)
}

func redirectLogs(settings *conf.Settings) error {
	cfg := settings.LoggingConfig()
	cfg.Console.Enabled = false
	if cfg.FileOutput == nil {
		cfg.FileOutput = &logger.FileOutput{
			Enabled:    true,
			Path:       uiLogFile,
			MaxSize:    settings.Log.MaxSize,
			MaxAge:     settings.Log.MaxAge,
			MaxBackups: settings.Log.MaxBackups,
			Compress:   settings.Log.Compress,
			Level:      cfg.DefaultLevel,
		}
	}
	central, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to redirect logs: %w", err)
	}
	logger.SetGlobal(central)
	return nil
}

// rotateOnHangup starts a new log file for every signal on sigs until ctx
// ends.
func rotateOnHangup(ctx context.Context, sigs <-chan os.Signal, rotate func() error, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if err := rotate(); err != nil {
				log.Warn("failed to rotate log file", logger.Error(err))
				continue
			}
			log.Info("log file rotated")
		}
	}
}
