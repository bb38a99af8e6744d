// Package cli implements the forkjoin command: sample fork-join workloads run
// against a configured pool, with an optional Prometheus endpoint.
package cli

import (
	"io"
	"time"

	"github.com/Swind/go-forkjoin/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flag name -> config key
var flagKeys = map[string]string{
	"workers":      "pool.workers",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"metrics-addr": "metrics.addr",
}

type app struct {
	configFile string
	linger     time.Duration
	cfg        *config.Config
}

// NewRootCommand builds the forkjoin command tree writing to stdout and
// stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	rc := &cobra.Command{
		Use:   "forkjoin",
		Short: "Run fork-join workloads on a work-stealing pool",
		Long: `forkjoin runs sample workloads on a work-stealing fork-join pool and
prints the pool's counters when they finish.

Configuration is read from defaults, an optional config file (--config),
FORKJOIN_* environment variables and flags, in increasing priority.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := rc.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (yaml, toml or json)")
	flags.Int("workers", -1, "number of workers, -1 for one per CPU")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the workload runs")
	flags.DurationVar(&a.linger, "linger", 0, "keep serving metrics this long after the workload finishes")

	rc.AddCommand(a.newFibCommand())
	rc.AddCommand(a.newCounterCommand())
	rc.AddCommand(a.newTreeCommand())

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	a.cfg = cfg
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "binding flag %s", name)
		}
	}
	// An explicit address turns the endpoint on
	if flags.Changed("metrics-addr") {
		v.Set("metrics.enabled", true)
	}
	return nil
}
