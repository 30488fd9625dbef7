package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/config"
	"github.com/mockgate/mockgate/pkg/engine"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/rule"
	"github.com/mockgate/mockgate/pkg/upload"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		rulesDir   string
		addr       string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{Server: config.DefaultServerConfig()}

			if configFile != "" {
				loaded, err := config.LoadFromFile(configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if rulesDir != "" {
				result, err := config.NewDirectoryLoader(rulesDir).Load()
				if err != nil {
					return err
				}
				cfg.Routes = append(cfg.Routes, result.Routes...)
				for _, le := range result.Errors {
					fmt.Fprintln(os.Stderr, "Warning:", le.Error())
				}
			}

			// Flags override file settings.
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if logLevel != "" {
				cfg.Server.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.Server.LogFormat = logFormat
			}

			if errs := config.Validate(cfg.Routes); len(errs) > 0 {
				for _, err := range errs {
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
				return fmt.Errorf("%d invalid rule(s)", len(errs))
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "gateway configuration file (JSON or YAML)")
	cmd.Flags().StringVarP(&rulesDir, "rules", "r", "", "directory of additional rule files")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	return cmd
}

func runServer(cfg *config.Config) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Server.LogLevel),
		Format: logging.ParseFormat(cfg.Server.LogFormat),
	})

	store := storage.NewMemoryStore()
	store.Replace(cfg.Routes)

	var uploads *upload.Resolver
	if cfg.Server.UploadDir != "" {
		uploads = upload.NewResolver(cfg.Server.UploadDir)
	}

	reqlog := requestlog.NewMemoryStore(cfg.Server.MaxLogEntries)

	handler := engine.NewHandler(engine.HandlerConfig{
		Store:               store,
		Uploads:             uploads,
		RequestLog:          reqlog,
		DefaultProxyTimeout: time.Duration(cfg.Server.DefaultProxyTimeoutMs) * time.Millisecond,
		Log:                 log,
	})

	srv := engine.NewServer(cfg.Server.Addr, handler, engine.WithLogger(log))
	if err := srv.Start(); err != nil {
		return err
	}
	log.Info("loaded rules", "count", countActive(cfg.Routes), "total", len(cfg.Routes))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func countActive(routes []*rule.RouteRule) int {
	n := 0
	for _, r := range routes {
		if r.IsEnabled() {
			n++
		}
	}
	return n
}
