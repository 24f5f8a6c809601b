// Command vpipe renders image sequences through the video pipeline.
//
// Subcommands export a cropped, filtered movie, preview playback through a
// display link, list the available filters and write a default
// configuration file.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/videopipeline/config"
	"github.com/opd-ai/videopipeline/geom"
)

type rootOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vpipe",
		Short:         "Render image sequences through the video pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	cmd.AddCommand(
		newExportCmd(opts),
		newPreviewCmd(opts),
		newFiltersCmd(),
		newConfigCmd(),
	)
	return cmd
}

// setup configures logging and the metrics endpoint before any subcommand.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	level := o.logLevel
	if level == "" {
		cfg, err := o.load()
		if err != nil {
			return err
		}
		level = cfg.Logging.Level
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(cmd.ErrOrStderr())

	if o.metricsAddr != "" {
		go serveMetrics(o.metricsAddr)
	}
	return nil
}

// load reads the configuration file, or the defaults plus environment
// overrides when none is given.
func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logrus.WithFields(logrus.Fields{
		"function": "serveMetrics",
		"addr":     addr,
	}).Info("Serving metrics")

	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"addr":     addr,
			"error":    err.Error(),
		}).Error("Metrics server stopped")
	}
}

// parseRect parses "x,y,w,h".
func parseRect(s string) (geom.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geom.Rect{}, fmt.Errorf("rectangle %q: want x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Rect{}, fmt.Errorf("rectangle %q: %w", s, err)
		}
		v[i] = f
	}
	r := geom.R(v[0], v[1], v[2], v[3])
	if r.Width <= 0 || r.Height <= 0 {
		return geom.Rect{}, fmt.Errorf("rectangle %q: empty", s)
	}
	return r, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vpipe:", err)
		os.Exit(1)
	}
}
