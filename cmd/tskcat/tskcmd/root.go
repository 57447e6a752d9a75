// Package tskcmd wires the cobra command tree for the tskcat CLI.
package tskcmd

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"

	_ "github.com/tskcat/engine/backend/postgres"
	_ "github.com/tskcat/engine/backend/sqlite"
)

var (
	verboseCount int
	quiet        bool
	metricsAddr  string
)

// Root is the tskcat root command.
var Root = &cobra.Command{
	Use:           "tskcat",
	Short:         "Catalogue forensic disk images into a queryable case database",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		enginelog.SetVerbosity(verboseCount, quiet)
		if metricsAddr != "" {
			startMetricsServer(metricsAddr)
		}
	},
}

func init() {
	Root.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase logging verbosity (repeatable)")
	Root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log errors only")
	Root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	Root.AddCommand(ingestCommand)
	Root.AddCommand(errorsCommand)
}

// Execute runs the CLI, returning the first error encountered.
func Execute() error {
	return Root.Execute()
}

var metricsRegistry = prometheus.NewRegistry()

// sharedMetrics is built at package init against metricsRegistry so --metrics-addr
// and the ingest command observe the same counters.
var sharedMetrics = engine.NewMetrics(metricsRegistry)

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			enginelog.Errorf("metrics", "metrics server stopped: %v", err)
		}
	}()
	enginelog.Infof("metrics", "serving Prometheus metrics on %s", addr)
}

func backendOptions() engine.OpenOptions {
	return engine.OpenOptions{
		Location: caseLocationFlag,
		Host:     pgHostFlag,
		Port:     pgPortFlag,
		User:     pgUserFlag,
		Password: pgPasswordFlag,
		DBName:   pgDBNameFlag,
	}
}

func fatalUsage(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
