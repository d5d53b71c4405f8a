package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Storyteller/internal/config"
	"Storyteller/internal/stub"
	"Storyteller/internal/telemetry"
)

func newStubCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stub-backend",
		Short: "Serve a canned backend for demos and tests",
		Long: `stub-backend answers POST /start and POST /chat with fixed text so the client
can be tried without the real story service. It generates no stories.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir := opts.logDir
			if logDir == "" {
				logDir = config.DefaultConfig().LogDir
			}
			logger, closeLog, err := telemetry.InitLogger(logDir, opts.debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Stub backend listening on %s (Ctrl+C to stop)\n", addr)
			return stub.NewServer(logger).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	return cmd
}
