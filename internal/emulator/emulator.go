// internal/emulator/emulator.go
package emulator

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/onvif"
)

const (
	SourceIMOU    = "imou"
	SourceGeneric = "generic"
	SourceAxis    = "axis"
	SourceONVIF   = "onvif"

	ServerHeader = "IPCam-Simulator/1.0"
)

// Config descreve a identidade e as credenciais fixas do emulador.
type Config struct {
	Username     string
	Password     string
	Realm        string
	Name         string
	Manufacturer string
	Model        string
	Firmware     string
	SerialNumber string
	HardwareID   string
	Width        int
	Height       int
	FPS          int
}

func DefaultConfig() Config {
	return Config{
		Username:     "admin",
		Password:     "admin123",
		Realm:        "IP Camera",
		Name:         "IP Camera Simulator",
		Manufacturer: "DevTesting",
		Model:        "SIMULATOR IPC-SIM 3MP",
		Firmware:     "1.0.0",
		SerialNumber: "SIM001",
		HardwareID:   "SIMULATOR_HW",
		Width:        640,
		Height:       360,
		FPS:          25,
	}
}

// Emulator é uma câmera IP falsa que expõe a mesma superfície que o classifier e a
// escada de captura esperam de hardware real.
type Emulator struct {
	cfg     Config
	started time.Time
	engine  *gin.Engine
	log     *slog.Logger

	mu   sync.Mutex
	hits map[string]int
}

func New(cfg Config) *Emulator {
	def := DefaultConfig()
	if cfg.Realm == "" {
		cfg.Realm = def.Realm
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}

	e := &Emulator{
		cfg:     cfg,
		started: time.Now(),
		log:     slog.With("component", "emulator"),
		hits:    make(map[string]int),
	}
	e.engine = e.routes()
	return e
}

func (e *Emulator) Handler() http.Handler { return e.engine }

func (e *Emulator) Config() Config { return e.cfg }

// Hits devolve quantas imagens a rota daquela origem já serviu.
func (e *Emulator) Hits(source string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits[source]
}

func (e *Emulator) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Header("Server", ServerHeader)
		c.Next()
	})
	r.Use(e.basicAuth())

	r.GET("/", e.handleInfo)
	r.GET("/status", e.handleStatus)
	r.GET("/cgi-bin/deviceInfo.cgi", e.handleDeviceInfoCGI)

	r.GET("/tmpfs/snap.jpg", e.snapshot(SourceIMOU))
	r.GET("/cgi-bin/snapshot.cgi", e.snapshot(SourceGeneric))
	r.GET("/axis-cgi/jpg/image.cgi", e.snapshot(SourceAxis))
	r.GET("/onvif/snapshot", e.snapshot(SourceONVIF))

	r.POST(onvif.DeviceServicePath, e.handleDeviceService)
	r.POST(onvif.MediaServicePath, e.handleMediaService)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "path": c.Request.URL.Path})
	})
	return r
}

func (e *Emulator) basicAuth() gin.HandlerFunc {
	challenge := fmt.Sprintf(`Basic realm="%s"`, e.cfg.Realm)
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(e.cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(e.cfg.Password)) == 1
		if !userOK || !passOK {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.Next()
	}
}

func (e *Emulator) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":         e.cfg.Name,
		"manufacturer": e.cfg.Manufacturer,
		"model":        e.cfg.Model,
		"firmware":     e.cfg.Firmware,
		"serial":       e.cfg.SerialNumber,
		"capabilities": []string{"snapshot", "onvif", "rtsp"},
		"endpoints": gin.H{
			"imou_snapshot":    "/tmpfs/snap.jpg",
			"generic_snapshot": "/cgi-bin/snapshot.cgi",
			"axis_snapshot":    "/axis-cgi/jpg/image.cgi",
			"onvif_device":     onvif.DeviceServicePath,
			"onvif_media":      onvif.MediaServicePath,
			"onvif_snapshot":   "/onvif/snapshot",
			"status":           "/status",
		},
	})
}

func (e *Emulator) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "online",
		"uptime":     int64(time.Since(e.started).Seconds()),
		"resolution": fmt.Sprintf("%dx%d", e.cfg.Width, e.cfg.Height),
		"fps":        e.cfg.FPS,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (e *Emulator) handleDeviceInfoCGI(c *gin.Context) {
	body := fmt.Sprintf("DeviceName=%s\r\nManufacturer=%s\r\nFirmwareVersion=%s\r\nSerialNumber=%s\r\n",
		e.cfg.Model, e.cfg.Manufacturer, e.cfg.Firmware, e.cfg.SerialNumber)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}

func (e *Emulator) snapshot(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		img, err := RenderJPEG(e.cfg.Width, e.cfg.Height, source, e.cfg.Model)
		if err != nil {
			e.log.Error("render failed", "source", source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image"})
			return
		}
		e.mu.Lock()
		e.hits[source]++
		e.mu.Unlock()

		c.Header("Camera-Source", source)
		c.Header("Capture-Time", time.Now().UTC().Format(time.RFC3339Nano))
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "image/jpeg", img)
	}
}

// Run sobe o emulador em addr até o ctx ser cancelado.
func (e *Emulator) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           e.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("camera emulator listening", "addr", addr, "model", e.cfg.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
