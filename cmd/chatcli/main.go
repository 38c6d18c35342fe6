// Command chatcli is a terminal chat client. It logs in against the
// backend's REST API, keeps a realtime websocket session and renders
// conversations with delivery ticks, typing indicators and presence.
package main

import (
	"flag"
	"fmt"
	"os"

	"daymoon-client/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	server := flag.String("server", "", "backend base URL, overrides API.BASE_URL")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.API.BaseURL = *server
	}

	app := NewApp(cfg)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
