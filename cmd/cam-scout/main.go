// cmd/cam-scout/main.go
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kardianos/service"

	"github.com/sua-org/cam-scout/internal/config"
)

const version = "0.4.0"

func main() {
	var (
		serviceAction string
		configPath    string
	)
	flag.StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
	flag.StringVar(&configPath, "config", "", "YAML config file (overrides CAMSCOUT_CONFIG)")
	flag.Parse()

	// Carrega .env na raiz (se não existir, segue só com o ambiente)
	envErr := godotenv.Load()

	if configPath != "" {
		os.Setenv("CAMSCOUT_CONFIG", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.Log)
	if envErr != nil {
		slog.Debug(".env not loaded", "error", envErr)
	}

	svcConfig := &service.Config{
		Name:        "cam-scout",
		DisplayName: "cam-scout camera discovery",
		Description: "Discovers IP cameras, captures snapshots and guards lesson analysis runs",
	}
	if configPath != "" {
		svcConfig.Arguments = []string{"-config", configPath}
	}

	prg := &program{cfg: cfg}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		slog.Error("service setup failed", "error", err)
		os.Exit(1)
	}

	if serviceAction != "" {
		if err := service.Control(s, serviceAction); err != nil {
			slog.Error("service action failed", "action", serviceAction, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
		return
	}

	slog.Info("starting cam-scout", "version", version, "addr", cfg.ServerAddress())
	if err := s.Run(); err != nil {
		slog.Error("cam-scout stopped with error", "error", err)
		os.Exit(1)
	}
}
