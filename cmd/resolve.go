package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/observability"
)

// cleanupTimeout bounds browser teardown after a one-shot resolve.
const cleanupTimeout = 15 * time.Second

func newResolveCmd() *cobra.Command {
	var action, target, value, url, input string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one element, optionally act on it, and print the outcome as JSON",
		Example: `  domscout resolve --url example.com --target "Log in" --action click
  domscout resolve --target "Email placeholder" --action fill --value me@example.com
  domscout resolve --input '{"action":"select","target":["plan","Pro"],"value":"pro"}'
  domscout resolve --url example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd, cfg); err != nil {
				return err
			}

			var d descriptor.Descriptor
			if cmd.Flags().Changed("input") {
				if d, err = descriptor.DecodeToolInput(input); err != nil {
					return fmt.Errorf("invalid --input: %w", err)
				}
			} else {
				d = descriptor.Descriptor{Action: action, Value: value, URLOverride: url}
				if target != "" {
					d.Target = descriptor.Text(target)
				}
			}

			logger := observability.GetLogger()
			stopTracing := startTracing(cfg, logger)
			exec := newExecutor(cfg, logger)

			// The browser goes away however the call ends.
			defer func() {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				defer cancel()
				if err := exec.Cleanup(cleanupCtx); err != nil {
					logger.Warn("Browser cleanup reported errors", zap.Error(err))
				}
				stopTracing(cleanupCtx)
			}()

			out, err := exec.Execute(ctx, d)
			fmt.Fprintln(cmd.OutOrStdout(), out.JSON())
			return err
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "click, fill or select; omit to only resolve")
	cmd.Flags().StringVar(&target, "target", "", `element description, e.g. "Log in" or "Submit button"`)
	cmd.Flags().StringVar(&value, "value", "", "text to fill or option to select")
	cmd.Flags().StringVar(&url, "url", "", "page to load first when it differs from the current one")
	cmd.Flags().StringVar(&input, "input", "", "raw tool input: a JSON descriptor, a URL or target text")
	addOverrideFlags(cmd)
	return cmd
}
