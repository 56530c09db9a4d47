package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Mediadesk/internal"
	"github.com/hbomb79/Mediadesk/pkg/logger"
	"github.com/joho/godotenv"
)

var log = logger.Get("Bootstrap")

// main() is the entry point to the program. The configuration is read
// from the file given by the -config flag (with a .env file, when present,
// providing environment overrides) and Mediadesk is run until interrupted.
func main() {
	configPath := flag.String("config", internal.DefaultConfigPath, "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Emit(logger.WARNING, "Failed to load %s: %v\n", *envPath, err)
	}

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetMinLoggingLevel(config.MinLoggingLevel())

	mediadesk, err := internal.New(*config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Mediadesk: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mediadesk.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Mediadesk stopped: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Mediadesk shutdown complete\n")
}
