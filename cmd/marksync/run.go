package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/marksync/internal/auth"
	"github.com/alexjbarnes/marksync/internal/mcpserver"
	"github.com/alexjbarnes/marksync/internal/server"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchQuiet coalesces the burst of events a browser produces when it
// rewrites its bookmarks file.
const watchQuiet = 500 * time.Millisecond

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run one scheduler per account, watch the local bookmarks files and
optionally serve the MCP control endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	a.logger.Info("marksync starting",
		slog.String("version", Version),
		slog.Int("accounts", len(a.controller.Accounts())),
		slog.Bool("mcp", a.cfg.EnableMCP),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.controller.Run(gctx)
	})

	for path, replica := range a.replicas {
		ids := a.users[path]

		g.Go(func() error {
			return replica.Watch(gctx, watchQuiet, func() {
				a.controller.Changed(ids...)
			})
		})
	}

	if a.cfg.EnableMCP {
		g.Go(func() error {
			return a.runMCP(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("marksync stopped")
		return nil
	}

	return err
}

// runMCP serves the MCP control tools until ctx is cancelled.
func (a *app) runMCP(ctx context.Context) error {
	keys, err := a.cfg.APIKeys()
	if err != nil {
		return fmt.Errorf("parsing MCP API keys: %w", err)
	}

	mcpLogger := a.logger.With(slog.String("service", "mcp"))

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "marksync-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, a.controller)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeys(keys),
		MCPHandler: mcpHandler,
		Logger:     mcpLogger,
	})

	mcpLogger.Info("starting MCP server",
		slog.String("listen", a.cfg.MCPListenAddr),
		slog.Int("keys", len(keys)),
	)

	return server.Serve(ctx, server.New(a.cfg.MCPListenAddr, mux), mcpLogger)
}
