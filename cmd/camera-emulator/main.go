// cmd/camera-emulator/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/emulator"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ec := emulator.DefaultConfig()
	ec.Username = cfg.Emulator.Username
	ec.Password = cfg.Emulator.Password
	ec.Width = cfg.Emulator.Width
	ec.Height = cfg.Emulator.Height
	emu := emulator.New(ec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Emulator.Host, strconv.Itoa(cfg.Emulator.Port))
	slog.Info("credentials", "username", ec.Username, "snapshot", "http://"+addr+"/cgi-bin/snapshot.cgi")
	if err := emu.Run(ctx, addr); err != nil {
		slog.Error("emulator stopped", "error", err)
		os.Exit(1)
	}
}
