package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/metrics"
	"github.com/bonial-oss/kuma-monitor-client/pkg/session"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	runtime "sigs.k8s.io/controller-runtime"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
)

var (
	debug bool

	log = logf.Log.WithName("main")
)

// NewRootCommand creates a new *cobra.Command that is used as the root command
// for kuma-monitor-client.
func NewRootCommand() *cobra.Command {
	options := config.NewDefaultOptions()

	cmd := &cobra.Command{
		Use:           "kuma-monitor-client",
		Short:         "Track the status of Uptime Kuma monitors",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			runtime.SetLogger(zap.New(zap.UseDevMode(debug)))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			err := config.ApplySettingsFile(cmd.Flags(), options)
			if err != nil {
				return err
			}

			err = options.Validate()
			if err != nil {
				return err
			}

			return Run(signals.SetupSignalHandler(), options)
		},
	}

	options.AddFlags(cmd)

	cmd.AddCommand(NewConfigureCommand())

	return cmd
}

// NewConfigureCommand creates a new *cobra.Command that saves the settings
// given on the command line to the settings file.
func NewConfigureCommand() *cobra.Command {
	options := config.NewDefaultOptions()

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Save server, credentials and mode to the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.SettingsFile == "" {
				return errors.New("--settings-file is required")
			}

			err := config.ApplySettingsFile(cmd.Flags(), options)
			if err != nil {
				return err
			}

			err = options.Validate()
			if err != nil {
				return err
			}

			err = config.WriteSettings(options.SettingsFile, &options.Settings)
			if err != nil {
				return err
			}

			log.Info("settings saved", "settings-file", options.SettingsFile)

			return nil
		},
	}

	options.AddFlags(cmd)

	return cmd
}

func main() {
	cmd := NewRootCommand()

	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cmd.PersistentFlags().BoolVar(&debug, "debug", debug, "Enable debug logging.")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Run starts a monitoring session and logs every monitor view until ctx is
// done.
func Run(ctx context.Context, options *config.Options) error {
	s, err := session.NewSession(options)
	if err != nil {
		return errors.Wrapf(err, "failed to initialize session")
	}

	views, unsubscribe := s.Subscribe()
	defer unsubscribe()

	err = s.Start(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to start session")
	}
	defer s.Stop()

	if options.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, options.MetricsAddr); err != nil {
				log.Error(err, "metrics server failed")
			}
		}()
	}

	log.Info("session started", "mode", options.Mode, "server-url", options.ServerURL)

	logView(s.View())

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case view := <-views:
			logView(view)

			if status := s.Status(); status.Err != "" {
				log.Info("driver reported an error", "state", status.State, "error", status.Err)
			}
		}
	}
}

func logView(view store.View) {
	if view.Len() == 0 {
		log.V(1).Info("no monitors", "version", view.Version)
		return
	}

	log.Info("monitors updated", "monitors", view.Len(), "version", view.Version)

	for _, m := range view.Monitors {
		log.Info(m.Name, "id", m.ID, "status", m.EffectiveStatus(), "uptime", m.Uptime)
	}
}
