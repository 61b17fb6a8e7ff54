package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/analytics"
	"github.com/ziadkadry99/assistd/internal/assistant"
	"github.com/ziadkadry99/assistd/internal/audit"
	"github.com/ziadkadry99/assistd/internal/content"
	"github.com/ziadkadry99/assistd/internal/server"
)

const shutdownTimeout = 15 * time.Second

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP assistant server",
	Long: `Starts the assistant HTTP server. It exposes the streaming assistant,
chat, intent, search, audit and analytics endpoints. With --watch the
content directory is monitored and the search index is rebuilt when pages
change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		if cmd.Flags().Changed("watch") {
			cfg.Content.Watch = serveWatch
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		limiter, err := a.limiter(ctx)
		if err != nil {
			return err
		}
		st, err := a.assistantStack(ctx, limiter)
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowAll:       cfg.Server.AllowAllOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}, a.logger)
		r := srv.Router()
		assistant.RegisterRoutes(r, st.service)
		audit.RegisterRoutes(r, st.auditStore, a.log)
		analytics.RegisterRoutes(r, st.analytics)

		if cfg.Content.Watch {
			w, err := content.NewWatcher(cfg.Content.Dir, cfg.Content.Patterns, content.DefaultDebounce, a.retriever.Invalidate, a.log)
			if err != nil {
				return fmt.Errorf("watching %s: %w", cfg.Content.Dir, err)
			}
			defer w.Close()
			go w.Run(ctx)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return <-errCh
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild the index when content changes")
	rootCmd.AddCommand(serveCmd)
}
