// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markb/cloudtune/internal/log"
	"github.com/markb/cloudtune/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CloudTune server",
	Long:  `Starts the HTTP server with the backend connect, list and stream endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		domain, _ := cmd.Flags().GetString("domain")
		certDir, _ := cmd.Flags().GetString("cert-dir")

		jwtSecret := os.Getenv("CLOUDTUNE_STREAM_SECRET")
		if jwtSecret == "" {
			jwtSecret = "super-secret-stream-key-please-change-in-production"
			fmt.Println("Warning: Using default stream secret. Set CLOUDTUNE_STREAM_SECRET in production.")
		}

		if err := log.Init(buildLogConfig(cmd)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		srv := server.New(server.Config{JWTSecret: jwtSecret})

		errCh := make(chan error, 1)
		if domain != "" {
			fmt.Printf("Starting CloudTune on https://%s\n", domain)
			go func() {
				errCh <- srv.ListenAndServeTLS(server.HTTPSConfig{
					Domain:  domain,
					CertDir: certDir,
				})
			}()
		} else {
			addr := fmt.Sprintf("%s:%d", host, port)
			fmt.Printf("Starting CloudTune on %s\n", addr)
			fmt.Printf("  API: http://%s/api/{backend}\n", addr)
			go func() {
				errCh <- srv.ListenAndServe(addr)
			}()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

// buildLogConfig creates a log.Config from environment variables and CLI flags.
// Priority: CLI flags > environment variables > defaults
func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()

	if mode := os.Getenv("CLOUDTUNE_LOG_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if level := os.Getenv("CLOUDTUNE_LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("CLOUDTUNE_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	if file := os.Getenv("CLOUDTUNE_LOG_FILE"); file != "" {
		cfg.FilePath = file
	}

	if cmd.Flags().Changed("log-mode") {
		cfg.Mode, _ = cmd.Flags().GetString("log-mode")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Format, _ = cmd.Flags().GetString("log-format")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.FilePath, _ = cmd.Flags().GetString("log-file")
	}

	return cfg
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().String("domain", "", "Enable HTTPS with a Let's Encrypt certificate for this domain")
	serveCmd.Flags().String("cert-dir", "./certs", "Directory to cache Let's Encrypt certificates")
	serveCmd.Flags().String("log-mode", "console", "Log output: console or file")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-format", "text", "Log format: text or json")
	serveCmd.Flags().String("log-file", "cloudtune.log", "Log file path (file mode)")

	rootCmd.AddCommand(serveCmd)
}
