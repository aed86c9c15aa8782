package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/object-counter/internal/backend"
	"github.com/menta2k/object-counter/internal/config"
	"github.com/menta2k/object-counter/internal/logging"
	"github.com/menta2k/object-counter/internal/server"
)

func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "config file (json or yaml)")
	flag.StringVar(&addr, "addr", "", "listen address (default from config)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log := logging.New(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter, err := backend.NewCounter(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create counter")
	}

	log.Info().
		Str("backend", cfg.Model.Backend).
		Str("model", counter.Model()).
		Msg("object counter ready")

	if err := server.New(counter, cfg.Server, log).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("run server")
	}
}
