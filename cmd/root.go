package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/engine"
	"github.com/xkilldash9x/domscout/internal/mcp"
	"github.com/xkilldash9x/domscout/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// newExecutor builds the engine behind serve and resolve. Tests replace it.
var newExecutor = func(cfg config.Interface, logger *zap.Logger) mcp.Executor {
	return engine.NewWithBrowser(cfg, logger)
}

// NewRootCmd creates the domscout command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "domscout",
		Short:         "domscout finds page elements from loose descriptions and acts on them.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "domscout"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting domscout", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.domscout/config.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with ctx and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// initializeConfig points v at the config file and the DOMSCOUT_ environment.
func initializeConfig(v *viper.Viper) error {
	v.SetEnvPrefix("DOMSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".domscout"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// addOverrideFlags registers the flags both serve and resolve accept.
func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("headful", false, "show the browser window")
	cmd.Flags().Float64("threshold", 0, "fuzzy match threshold, 0-100 (default from config)")
	cmd.Flags().String("strategy", "", "scan strategy: narrow_then_broad or broad_only (default from config)")
}

// applyOverrides copies explicitly set flags onto cfg and revalidates it.
func applyOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("headful") {
		headful, _ := flags.GetBool("headful")
		cfg.SetBrowserHeadless(!headful)
	}
	if flags.Changed("threshold") {
		t, _ := flags.GetFloat64("threshold")
		cfg.SetScannerThreshold(t)
	}
	if flags.Changed("strategy") {
		s, _ := flags.GetString("strategy")
		cfg.SetScannerStrategy(s)
	}
	if c, ok := cfg.(*config.Config); ok {
		return c.Validate()
	}
	return nil
}

// startTracing installs the stdout tracer when enabled. The returned func
// flushes it.
func startTracing(cfg config.Interface, logger *zap.Logger) func(context.Context) {
	if !cfg.Observability().TracingEnabled {
		return func(context.Context) {}
	}
	tp, err := observability.InitTracing(cfg.Logger().ServiceName, Version)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		return func(context.Context) {}
	}
	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
}
