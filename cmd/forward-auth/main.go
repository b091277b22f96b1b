package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/forward-auth/internal"
	"github.com/dgellow/forward-auth/internal/config"
	"github.com/dgellow/forward-auth/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"addr":           ":4181",
		"provider":       "home-assistant",
		"authCookieName": "_forward_auth",
		"csrfCookieName": "_forward_auth_csrf",
		"lifetime":       "10m",
		"userWhitelist":  []string{"you@yourcompany.com"},
		"providers": map[string]any{
			"home-assistant": map[string]any{
				"url":      "https://home-assistant.yourcompany.com",
				"clientId": "https://auth.yourcompany.com",
			},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (optional; environment overrides apply)")
	version := flag.Bool("version", false, "print version and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate configuration and exit")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		// Load already validated the core config; building the app also
		// validates the active provider.
		if _, err := internal.NewForwardAuth(cfg); err != nil {
			log.LogError("Validation failed: %v", err)
			os.Exit(1)
		}
		fmt.Println("Result: PASS")
		return
	}

	log.LogInfoWithFields("main", "Starting forward-auth", map[string]any{
		"version": BuildVersion,
	})

	app, err := internal.NewForwardAuth(cfg)
	if err != nil {
		log.LogError("Failed to build application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(context.Background()); err != nil {
		log.LogError("Server exited with error: %v", err)
		os.Exit(1)
	}
}
