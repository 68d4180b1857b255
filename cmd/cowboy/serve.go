package main

import (
	"context"
	"fmt"
	"os"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"github.com/MomsFriendlyDevCo/Cowboy/devserver"
	_ "github.com/MomsFriendlyDevCo/Cowboy/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// serveConfig is the YAML shape of the dev server config file.
type serveConfig struct {
	// Addr is the listen address (default ":8787").
	Addr string `yaml:"addr"`

	// Debug enables per-request debug logging.
	Debug bool `yaml:"debug"`

	// Scheduler enables the synthetic scheduled endpoint.
	Scheduler bool `yaml:"scheduler"`

	// Bindings become per-invocation environment bindings, alongside the
	// flags above.
	Bindings map[string]string `yaml:"bindings"`
}

func defaultServeConfig() serveConfig {
	return serveConfig{Addr: ":8787"}
}

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the diagnostic router behind a local HTTP listener",
		Long: `Start a local HTTP server dispatching requests through a small
diagnostic router: an echo endpoint, a parsed-body reflector, and a
scheduled-handler probe. Useful for verifying bindings, middleware and
tooling against a live listener.

Examples:
  cowboy serve
  cowboy serve --addr=:9000 --debug
  cowboy serve --config=cowboy.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if debug {
				cfg.Debug = true
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, else :8787)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func loadServeConfig(path string) (serveConfig, error) {
	cfg := defaultServeConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	return cfg, nil
}

func runServe(cfg serveConfig) error {
	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	env := cowboy.NewEnv()
	if cfg.Debug {
		env.Set(cowboy.EnvDebug, true)
	}
	if cfg.Scheduler {
		env.Set(cowboy.EnvScheduler, true)
	}
	for key, value := range cfg.Bindings {
		env.Set(key, value)
	}

	return devserver.ListenAndServe(cfg.Addr, diagnosticRouter(logger), env, logger)
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// diagnosticRouter builds the routes served by `cowboy serve`.
func diagnosticRouter(logger *zap.Logger) *cowboy.Router {
	rt := cowboy.New(cowboy.WithLogger(logger))
	rt.UseCors()
	rt.Use(cowboy.Named("log"))

	rt.Get("/", cowboy.HandlerFunc(func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		return map[string]string{"status": "ok", "version": version}, nil
	}))

	rt.Get("/echo/:word", cowboy.HandlerFunc(func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		return map[string]any{
			"word":  req.Params["word"],
			"query": req.Query,
		}, nil
	}))

	rt.Post("/reflect",
		cowboy.Named("parseBody"),
		cowboy.HandlerFunc(func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
			return map[string]any{"body": req.Body}, nil
		}),
	)

	rt.Schedule(func(ctx context.Context, event *cowboy.TriggerEvent, env *cowboy.Env) error {
		logger.Info("scheduled trigger",
			zap.String("type", event.Type),
			zap.Time("scheduledTime", event.ScheduledTime),
		)
		return nil
	})

	return rt
}
