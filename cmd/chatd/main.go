package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/teamdesk/messaging/internal/config"
	"github.com/teamdesk/messaging/internal/server"
)

func main() {
	// Optional .env for deployments that configure via environment.
	_ = godotenv.Load()

	configFlag := flag.String("config", "", "config file path (default ~/.teamchat/config.toml)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := resolveConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.Server.Listen = *listenFlag
	}
	if env := os.Getenv("CHATD_LISTEN"); env != "" && *listenFlag == "" {
		cfg.Server.Listen = env
	}

	app := fx.New(
		server.Module(server.Params{Config: cfg}),
	)

	app.Run()
}

func resolveConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(config.Path())
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}
