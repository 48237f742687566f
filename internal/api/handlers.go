// internal/api/handlers.go
package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/analysisjob"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/supervisor"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "healthy",
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

type discoverRequest struct {
	Network      string `json:"network"`
	ForceRefresh bool   `json:"force_refresh"`
}

// bindOptional aceita corpo vazio.
func bindOptional(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleDiscover(c *gin.Context) {
	var req discoverRequest
	if err := bindOptional(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err, "invalid request body")
		return
	}
	if req.Network != "" && !config.ValidPrefix(req.Network) {
		writeError(c, http.StatusBadRequest, core.ErrInvalidSubnet, "")
		return
	}

	report, cached, err := s.sup.Discover(c.Request.Context(), req.Network, req.ForceRefresh)
	switch {
	case errors.Is(err, discovery.ErrDiscoveryRunning):
		writeError(c, http.StatusConflict, err, "discovery already running, try again later")
		return
	case errors.Is(err, core.ErrInvalidSubnet):
		writeError(c, http.StatusBadRequest, err, "")
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, err, "discovery failed")
		return
	}

	msg := fmt.Sprintf("discovery finished: %d cameras found", report.TotalFound)
	if cached {
		msg = "results served from cache"
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: report, FromCache: &cached, Message: msg})
}

func (s *Server) handleDiscoverStatus(c *gin.Context) {
	writeData(c, http.StatusOK, s.sup.Discovery().Status(), "")
}

func (s *Server) handleDiscoverResults(c *gin.Context) {
	report, err := s.sup.Discovery().Results()
	if err != nil {
		writeError(c, http.StatusNotFound, err, "run a discovery first")
		return
	}
	cached := true
	c.JSON(http.StatusOK, envelope{Success: true, Data: report, FromCache: &cached})
}

type probeRequest struct {
	IP string `json:"ip" binding:"required"`
}

func (s *Server) handleProbe(c *gin.Context) {
	var req probeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err, "ip is required")
		return
	}
	if net.ParseIP(req.IP) == nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid ip %q", req.IP), "")
		return
	}

	desc, err := s.prober.Probe(c.Request.Context(), req.IP)
	switch {
	case errors.Is(err, core.ErrNotACamera), errors.Is(err, core.ErrHostUnreachable):
		writeError(c, http.StatusNotFound, err, "no camera found at this address")
		return
	case err != nil:
		writeError(c, http.StatusBadGateway, err, "probe failed")
		return
	}
	writeData(c, http.StatusOK, desc, "")
}

type captureRequest struct {
	IP            string `json:"ip" binding:"required"`
	Port          int    `json:"port"`
	UseTLS        bool   `json:"use_tls"`
	Manufacturer  string `json:"manufacturer"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	PreferredPath string `json:"preferred_path"`
	Store         bool   `json:"store"`
}

type captureResponse struct {
	core.CaptureResult
	ImageBase64 string `json:"image_base64,omitempty"`
}

// descriptor parte do descritor da última passada (se houver) e aplica o corpo por cima.
func (s *Server) descriptor(req captureRequest) core.CameraDescriptor {
	d, ok := s.sup.Discovery().Lookup(req.IP)
	if !ok {
		d = core.CameraDescriptor{Address: req.IP, Port: 80, Manufacturer: core.UnknownManufacturer}
	}
	if req.Port != 0 {
		d.Port = req.Port
	}
	if req.UseTLS {
		d.UseTLS = true
	}
	if req.Manufacturer != "" {
		d.Manufacturer = req.Manufacturer
	}
	if req.Username != "" {
		d.Username = req.Username
		d.Password = req.Password
	}
	if req.PreferredPath != "" {
		d.PreferredPath = req.PreferredPath
	}
	return d
}

func (s *Server) handleCapture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err, "ip is required")
		return
	}
	if net.ParseIP(req.IP) == nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid ip %q", req.IP), "")
		return
	}

	res := s.sup.Capture(c.Request.Context(), s.descriptor(req), supervisor.CaptureOptions{
		Store:         req.Store,
		CorrelationID: GetCorrelationID(c),
	})
	out := captureResponse{CaptureResult: res}
	if !res.Succeeded {
		c.JSON(http.StatusBadRequest, envelope{
			Success: false,
			Data:    out,
			Error:   res.Error,
			Code:    string(res.ErrorKind),
			Message: "could not capture an image from the camera",
		})
		return
	}
	out.ImageBase64 = base64.StdEncoding.EncodeToString(res.Image)
	writeData(c, http.StatusOK, out, "image captured")
}

func (s *Server) handleAnalyze(c *gin.Context) {
	lessonID := c.Param("id")
	res, err := s.sup.Analyze(c.Request.Context(), lessonID, GetCorrelationID(c))
	switch {
	case errors.Is(err, analysisjob.ErrNotConfigured):
		writeError(c, http.StatusServiceUnavailable, err, "")
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, envelope{
			Success: false,
			Data:    res,
			Error:   err.Error(),
			Message: "analysis job failed",
		})
		return
	}
	writeData(c, http.StatusOK, gin.H{"lesson_id": lessonID, "job": res}, "analysis finished")
}

func (s *Server) handleLockStats(c *gin.Context) {
	writeData(c, http.StatusOK, s.sup.Locks().Stats(), "")
}

func (s *Server) handleForceCleanup(c *gin.Context) {
	id := c.Param("id")
	n := s.sup.Locks().ForceCleanup(id)
	s.log.Info("force cleanup requested", "lesson_id", id, "removed", n, "correlation_id", GetCorrelationID(c))
	writeData(c, http.StatusOK, gin.H{"removed": n, "lesson_id": id}, "")
}
