package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/mcp"
	"github.com/xkilldash9x/domscout/internal/observability"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP tool server",
		Long: `Serve the agent command API on server.listen_addr. The browser is launched
on the first resolve command and released on shutdown or on "cleanup".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.SetServerListenAddr(addr)
			}
			if err := applyOverrides(cmd, cfg); err != nil {
				return err
			}

			logger := observability.GetLogger()
			stopTracing := startTracing(cfg, logger)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				stopTracing(flushCtx)
			}()

			logger.Info("Starting tool server", zap.String("version", Version), zap.String("addr", cfg.Server().ListenAddr))
			return mcp.NewServer(cfg, newExecutor(cfg, logger), logger).Start(ctx)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default from server.listen_addr)")
	addOverrideFlags(cmd)
	return cmd
}
