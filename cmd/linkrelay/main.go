package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "linkrelay/cmd/linkrelay/docs"
	"linkrelay/internal/config"
	"linkrelay/internal/logger"
	"linkrelay/pkg/logging"
)

var (
	configFile string
)

// @title           linkrelay API
// @version         1.0
// @description     Sends profile links to a worker through a work queue and returns the correlated reply synchronously.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkrelay",
		Short: "Synchronous request/reply gateway over message queues",
		Long:  "linkrelay accepts profile links over HTTP, dispatches them to a worker queue and waits for the matching reply",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the linkrelay HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting linkrelay",
				"work_transport", cfg.Broker.Work,
				"reply_transport", cfg.Broker.Reply,
				"work_queue", cfg.Correlation.WorkQueue,
				"reply_queue", cfg.Correlation.ReplyQueue,
			)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				if shutdownErr := app.Shutdown(ctx); shutdownErr != nil {
					log.ErrorwCtx(ctx, "Shutdown after failed init", "error", shutdownErr)
				}
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}
