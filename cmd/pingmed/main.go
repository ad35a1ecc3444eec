package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/config"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/daemon"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/node"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.pingme/config.toml)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = node.ConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", configPath, err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.ListenAddr = *listenFlag
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "error: jwt_secret must be set in the config file")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
