// Package cmd implements the docodb command line.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger   = slog.Default()
	registry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "docodb",
	Short: "Git object database on a document store",
	Long: "CLI for reading, writing and enumerating git objects kept in Elasticsearch, " +
		"Redis, MongoDB or a local directory, and for mirroring them to OCI registries.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/docodb/config.yaml)")
	flags.String("driver", "elastic", "document store driver: elastic, redis, mongo, file or memory")
	flags.String("url", "", "document store address")
	flags.String("index", "", "index, key prefix or collection holding the objects")
	flags.Bool("cache", false, "keep objects in memory for the lifetime of the command")
	flags.Int("compress", 0, "zstd compression level for written payloads (0 disables)")
	flags.Int("page-size", 0, "ids fetched per round-trip when enumerating")
	flags.Bool("lenient-reads", false, "report document store failures on reads as missing objects")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	for _, key := range []string{"driver", "url", "index", "cache", "compress", "page-size", "lenient-reads", "log-level", "metrics-addr"} {
		viper.BindPFlag(strings.ReplaceAll(key, "-", "_"), flags.Lookup(key))
	}

	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DOCODB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "docodb: reading config: %v\n", err)
		}
	}
}

// setup configures logging and metrics before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if addr := viper.GetString("metrics_addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "addr", addr, "error", err)
			}
		}()
		logger.Debug("serving metrics", "addr", addr)
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docodb")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "docodb")
	}
	return ".docodb"
}
