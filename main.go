package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/logpoison-tool/cmd"
	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Execute command
	if err := cmd.Execute(cfg, log); err != nil {
		if !errors.Is(err, cmd.ErrNotExploited) {
			log.Error("Command execution failed", "error", err)
		}
		os.Exit(1)
	}
}
