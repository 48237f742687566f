// cmd/mqtt-debug-subscriber/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/mqttclient"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.Log)
	if !cfg.MQTT.Enabled() {
		slog.Error("MQTT_HOST não definido")
		os.Exit(1)
	}

	// Tudo que o cam-scout publica: discovery, capture, analysis/locks, status
	subscribeTopic := mqttclient.JoinTopic(cfg.MQTT.BaseTopic, "#")
	if t := os.Getenv("MQTT_DEBUG_TOPIC"); t != "" {
		subscribeTopic = t
	}

	mc := cfg.MQTT
	mc.ClientID = "cam-scout-debug-subscriber"
	cli, err := mqttclient.NewClient(mc)
	if err != nil {
		slog.Error("erro ao conectar no MQTT", "error", err)
		os.Exit(1)
	}
	defer cli.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Subscribe(subscribeTopic, 1, handleMessage); err != nil {
		slog.Error("erro ao assinar tópico", "topic", subscribeTopic, "error", err)
		os.Exit(1)
	}
	slog.Info("subscribed", "topic", subscribeTopic)

	<-ctx.Done()
	slog.Info("sinal recebido, encerrando subscriber")
}

func handleMessage(topic string, payload []byte) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		slog.Warn("payload não é JSON", "topic", topic, "bytes", len(payload), "payload", string(payload))
		return
	}

	pretty, _ := json.MarshalIndent(raw, "", "  ")
	fmt.Printf("\n[%s] %d bytes\n%s\n", topic, len(payload), pretty)

	// campos comuns dos eventos de captura e de lock
	ip := getString(raw, "ip")
	lesson := getString(raw, "lesson_id")
	typ := getString(raw, "type", "status")
	if ip != "" || lesson != "" || typ != "" {
		slog.Info("event", "topic", topic, "ip", ip, "lesson_id", lesson, "type", typ)
	}
}

func getString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
