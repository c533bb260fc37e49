package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dasipc "github.com/behrlich/das-ipc-host"
	"github.com/behrlich/das-ipc-host/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML host config (defaults are used if omitted)")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var cfg *dasipc.HostConfig
	if *configPath != "" {
		loaded, err := dasipc.LoadHostConfig(*configPath)
		if err != nil {
			logger.Error("failed to load host config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = dasipc.DefaultHostConfig(os.Getpid())
	}

	logger.Info("starting host", "host_queue", cfg.HostQueueName, "plugin_queue", cfg.PluginQueueName)

	host, err := dasipc.NewHost(cfg, dasipc.WithLogger(logger))
	if err != nil {
		logger.Error("failed to construct host", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host.Start(ctx)

	fmt.Printf("Host listening: %s / %s\n", cfg.HostQueueName, cfg.PluginQueueName)
	fmt.Printf("Press Ctrl+C to stop...\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	stopDone := make(chan struct{})
	go func() {
		if err := host.Stop(); err != nil {
			logger.Error("error stopping host", "error", err)
		} else {
			logger.Info("host stopped successfully")
		}
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		logger.Info("stop timeout, forcing exit")
	}
}
