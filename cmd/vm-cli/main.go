package main

import (
	"fmt"
	"os"

	"github.com/govm-net/hellokv/config"
	"github.com/govm-net/hellokv/contracts/hello"
	"github.com/govm-net/hellokv/logger"
	"github.com/govm-net/hellokv/vm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile  string
	contextType string
	repoDir     string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "vm-cli",
	Short: "Hello contract host command line tool",
	Long: `Command line tool for deploying and calling the Hello key-value contract.
State is kept in the backend selected by the config file (memory, db or badger).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&contextType, "context", "", "state backend: db or badger (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "r", "", "deployment record directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(abiCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(listCmd)
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if contextType != "" {
		cfg.Context.Type = contextType
	}
	if repoDir != "" {
		cfg.Repo = repoDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// every command is its own process, in-memory state would be gone by the next one
	if cfg.Context.Type == "memory" {
		return nil, fmt.Errorf("context type memory does not persist between vm-cli runs, use db or badger")
	}
	return cfg, nil
}

// openEngine builds an engine with every known contract kind registered.
// The returned function closes the engine and flushes logs and metrics.
func openEngine() (*vm.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	var registry *prometheus.Registry
	engineCfg := &vm.Config{
		ContextType:    cfg.Context.Type,
		ContextParams:  cfg.ContextParams(),
		CodeManagerDir: cfg.Repo,
		CacheSize:      cfg.CacheSize,
		Logger:         log,
	}
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		engineCfg.Metrics = registry
	}

	engine, err := vm.NewEngine(engineCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create VM engine: %w", err)
	}
	if err := engine.Register(hello.Contract); err != nil {
		engine.Close()
		return nil, nil, err
	}

	closer := func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to close engine", zap.Error(err))
		}
		if registry != nil {
			dumpMetrics(registry, log)
		}
		_ = log.Sync()
	}
	return engine, closer, nil
}

// dumpMetrics writes the collected metrics to stderr in text format
func dumpMetrics(g prometheus.Gatherer, log *zap.Logger) {
	families, err := g.Gather()
	if err != nil {
		log.Warn("failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			log.Warn("failed to write metrics", zap.Error(err))
			return
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
