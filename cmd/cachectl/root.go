package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/cache"
	"github.com/higuera/dashboard/config"
	"github.com/higuera/dashboard/logger"
	"github.com/higuera/dashboard/monitoring"
	"github.com/higuera/dashboard/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "cachectl"

// app holds what the subcommands share. It is built in PersistentPreRunE
// and torn down in PersistentPostRunE.
type app struct {
	cfg      config.Config
	log      logger.Logger
	svc      *cache.Service
	shutdown func()
}

// flagOrEnv returns the flag value if set, else the environment value, else
// defaultValue.
func flagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

func (a *app) start(cmd *cobra.Command) error {
	cfg, err := config.Load(flagOrEnv(cmd, "config", "CACHECTL_CONFIG", ""))
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	a.cfg = cfg
	a.log = logger.New(cfg.LogFormat, logger.ParseLevel(cfg.LogLevel))
	a.shutdown = func() {}

	reporter := monitoring.NewLogReporter(a.log)
	if cfg.OTLPEndpoint != "" {
		provider, shutdown, err := telemetry.New(cmd.Context(), cfg.OTLPEndpoint, cfg.OTLPToken, cfg.ServiceName)
		if err != nil {
			return errors.Wrap(err, "error creating telemetry")
		}
		a.shutdown = shutdown
		a.log = a.log.Stack(provider.Logger)
		reporter = monitoring.Multi(monitoring.NewLogReporter(a.log), monitoring.NewTracerReporter(provider.Tracer))
	}

	svc, err := cache.NewService(cfg, cache.WithLogger(a.log), cache.WithReporter(reporter))
	if err != nil {
		return err
	}
	a.svc = svc
	wait, _ := cmd.Flags().GetDuration("wait")
	waitForRemote(cmd.Context(), svc, wait)
	a.log.Debug("cache mode %s", svc.Mode())
	return nil
}

func (a *app) stop() error {
	var err error
	if a.svc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = a.svc.Close(ctx)
	}
	if a.shutdown != nil {
		a.shutdown()
	}
	return err
}

// waitForRemote blocks until the remote tier is connected, the timeout
// passes, or no remote tier is configured.
func waitForRemote(ctx context.Context, svc *cache.Service, timeout time.Duration) {
	if svc.Mode() != cache.ModeDegraded || timeout <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for svc.Mode() == cache.ModeDegraded {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and modify the dashboard cache",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.start(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.stop()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().String("config", "", "path to a YAML config file (env CACHECTL_CONFIG)")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error, off")
	root.PersistentFlags().Duration("wait", 2*time.Second, "how long to wait for the redis connection")

	root.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under key as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				found, val := a.svc.Get(cmd.Context(), args[0])
				if !found {
					return errors.Newf("key %q not found", args[0])
				}
				buf, err := json.Marshal(val)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(buf))
				return nil
			},
		},
		newSetCmd(a),
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Remove key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a.svc.Delete(cmd.Context(), args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print which cache tier is serving",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "mode: %s\n", a.svc.Mode())
				if r := a.svc.Remote(); r != nil {
					fmt.Fprintf(w, "remote: %s\n", r.State())
				}
				return nil
			},
		},
	)
	return root
}

func newSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var val any
			if err := json.Unmarshal([]byte(args[1]), &val); err != nil {
				return errors.Wrap(err, "value must be valid JSON")
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			a.svc.Set(cmd.Context(), args[0], val, ttl)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "time to live, defaults to the configured default_ttl")
	return cmd
}
