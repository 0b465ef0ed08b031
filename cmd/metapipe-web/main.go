package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/pipeline"
	"github.com/On-Jun9/MetaPipe/internal/web"
)

var (
	version = "dev" // set by ldflags during build
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.String("config", "", "config file path")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *cfgFile != "" {
		loaded, err := config.LoadFromFile(*cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	presets, err := config.NewPresetManager(cfg.DataDir)
	if err != nil {
		return err
	}

	server := web.NewServer(p, presets, p.Logger().Logger)
	server.SetVersion(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, cfg.Addr)
}
