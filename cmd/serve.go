package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feishu-bots/larkbot/internal/bridge"
	"github.com/feishu-bots/larkbot/internal/config"
	"github.com/feishu-bots/larkbot/internal/db"
	"github.com/feishu-bots/larkbot/internal/dedup"
	"github.com/feishu-bots/larkbot/internal/deliveries"
	"github.com/feishu-bots/larkbot/internal/feishu"
	"github.com/feishu-bots/larkbot/internal/llm"
	"github.com/feishu-bots/larkbot/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook bridge server",
	Long:  `Starts the HTTP server that receives Feishu event callbacks and dispatches generated replies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if servePort > 0 {
			cfg.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}

		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		dedupStore := dedup.NewStore(database)
		deliveryLog := deliveries.NewStore(database)
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.BaseURL)

		processor := bridge.NewProcessor(provider, cfg.Model, cfg.MaxOutputTokens, client, dedupStore, deliveryLog)
		handler := bridge.NewWebhookHandler(processor, deliveryLog)

		srv := server.New(server.Config{Port: cfg.Port}, database)
		bridge.RegisterRoutes(srv.Router(), handler)
		deliveries.RegisterRoutes(srv.Router(), deliveryLog)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "larkbot v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Provider: %s (%s)\n", provider.Name(), cfg.Model)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", cfg.DBPath)

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured HTTP port")
	rootCmd.AddCommand(serveCmd)
}
