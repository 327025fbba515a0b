// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-ai/kestrel/internal/app"
	"github.com/kestrel-ai/kestrel/internal/server"
)

// NewServeCmd creates the HTTP server command.
func NewServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			configFile, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			addr, _ := cmd.Flags().GetString("addr")

			a, err := app.New(configFile, dataDir)
			if err != nil {
				fmt.Printf("Error initializing: %v\n", err)
				os.Exit(1)
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := server.New(addr, a.Orchestrator, a.Tools, a.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			fmt.Printf("Listening on %s\n", addr)

			select {
			case err := <-errCh:
				if err != nil {
					fmt.Printf("Server error: %v\n", err)
					os.Exit(1)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					fmt.Printf("Error during shutdown: %v\n", err)
					os.Exit(1)
				}
			}
		},
	}

	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	return serveCmd
}
