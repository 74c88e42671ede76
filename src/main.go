package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/netwatch"
	"github.com/sirupsen/logrus"
)

var mainLogger = logrus.WithField("module", "main")

func main() {
	configPath := config_manager.ConfigPath()

	configManager, err := config_manager.NewConfigManager(configPath)
	if err != nil {
		mainLogger.WithError(err).Fatal("Failed to create config manager")
	}

	config, err := configManager.EnsureDefaultConfig()
	if err != nil {
		mainLogger.WithError(err).WithField("path", configPath).Fatal("Failed to load config")
	}

	InitializeGlobalLogger(config.LogLevel)
	mainLogger.WithField("path", configPath).Info("Using config")

	if err := config.Validate(); err != nil {
		mainLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, netwatch.NewFacility(config.Netwatch)); err != nil {
		mainLogger.WithError(err).Fatal("Reachability service failed")
	}

	mainLogger.Info("Reachability service stopped")
}
