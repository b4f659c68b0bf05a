package main

import (
	"flag"
	"log"
	"os"

	"StockSentinel/internal/di"
	"StockSentinel/pkg/config"
	"StockSentinel/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeServe, "serve | daily | monthly")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s mode=%s targets=%s", cfg.Environment, *mode, cfg.Targets.Backend)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Job failures are reported on the cycle report; only setup errors exit
	// non-zero.
	err = app.Run(*mode)
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
