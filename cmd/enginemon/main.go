package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"enginemon/internal/config"
	"enginemon/internal/link"
	"enginemon/internal/logging"
)

func main() {
	var (
		configPath string
		listPorts  bool
		simMode    bool
	)
	flag.StringVar(&configPath, "config", "./enginemon.yaml", "Path to YAML config")
	flag.BoolVar(&listPorts, "list-ports", false, "List serial ports and exit")
	flag.BoolVar(&simMode, "sim", false, "Run both links against the built-in simulator")
	flag.Parse()

	if listPorts {
		if err := printPorts(); err != nil {
			log.Fatalf("list ports failed: %v", err)
		}
		return
	}

	var adjust []func(*config.Config)
	if simMode {
		adjust = append(adjust, config.ForceSim)
		// The simulator runs fine on defaults.
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}
	cfg, err := config.Load(configPath, adjust...)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, closer, err := logging.New(cfg.Log, nil)
	if err != nil {
		log.Fatalf("logging init failed: %v", err)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("runtime init failed")
		os.Exit(1)
	}

	logger.Info().Str("config", configPath).Bool("sim", simMode).Msg("enginemon starting")
	if err := rt.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("enginemon stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("enginemon stopped")
}

func printPorts() error {
	ports, err := link.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
