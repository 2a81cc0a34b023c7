// Command dispatchmcp-example wires up the example packages into a runnable
// server: an echo tool, a rate-limiting middleware, and (when the relevant
// env vars are set) filesystem-backed resources and TOML-defined prompts,
// served over either stdio or streaming HTTP depending on configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/dispatchmcp/dispatch"
	"github.com/ggoodman/dispatchmcp/examples/echo"
	"github.com/ggoodman/dispatchmcp/examples/fsresources"
	"github.com/ggoodman/dispatchmcp/examples/httptransport"
	"github.com/ggoodman/dispatchmcp/examples/ratelimit"
	"github.com/ggoodman/dispatchmcp/examples/staticprompts"
	"github.com/ggoodman/dispatchmcp/stdio"
)

// config is populated from the environment via envdecode; every field
// defaults to a value that produces a working stdio-only server with no
// extra tools wired.
type config struct {
	Transport string `env:"DISPATCHMCP_TRANSPORT,default=stdio"` // "stdio" or "http"
	HTTPAddr  string `env:"DISPATCHMCP_HTTP_ADDR,default=:8080"`
	HTTPPath  string `env:"DISPATCHMCP_HTTP_PATH,default=/mcp"`

	ResourcesDir string `env:"DISPATCHMCP_RESOURCES_DIR"`
	PromptsDir   string `env:"DISPATCHMCP_PROMPTS_DIR"`

	RateLimitRPS   float64 `env:"DISPATCHMCP_RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"DISPATCHMCP_RATE_LIMIT_BURST,default=40"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("dispatchmcp-example.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := envdecode.Decode(&cfg); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}

	log := slog.Default()
	srv := echo.New()

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv.Use(limiter.Middleware())

	if cfg.ResourcesDir != "" {
		fsres, err := fsresources.New(srv, cfg.ResourcesDir)
		if err != nil {
			return fmt.Errorf("loading resources from %s: %w", cfg.ResourcesDir, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := fsres.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("fsresources.watch.fail", slog.String("err", err.Error()))
			}
		}()
	}

	if cfg.PromptsDir != "" {
		if err := staticprompts.LoadDir(srv, cfg.PromptsDir); err != nil {
			return fmt.Errorf("loading prompts from %s: %w", cfg.PromptsDir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case "stdio":
		h := stdio.NewHandler(srv, stdio.WithLogger(log))
		return h.Serve(ctx)
	case "http":
		h := httptransport.NewHandler(srv, cfg.HTTPPath, httptransport.WithLogger(log))
		httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: h}
		go func() {
			<-ctx.Done()
			_ = httpSrv.Close()
		}()
		log.Info("dispatchmcp-example.listen", slog.String("addr", cfg.HTTPAddr), slog.String("path", cfg.HTTPPath))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q (want \"stdio\" or \"http\")", cfg.Transport)
	}
}
