// internal/core/types.go
package core

import (
	"net"
	"strconv"
	"time"
)

type ProtocolType string

const (
	ProtocolHTTP  ProtocolType = "http"
	ProtocolONVIF ProtocolType = "onvif"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// UnknownManufacturer é o valor usado quando nenhuma regra de fingerprint casa.
const UnknownManufacturer = "Unknown"

// CameraDescriptor é o snapshot de uma câmera encontrada numa passada de discovery.
// Quem chama é dono do valor; o core não guarda cópia.
type CameraDescriptor struct {
	Address         string       `json:"ip"`
	Port            int          `json:"port"`
	UseTLS          bool         `json:"use_tls,omitempty"`
	Manufacturer    string       `json:"manufacturer"`
	Model           string       `json:"model"`
	FirmwareVersion string       `json:"firmware,omitempty"`
	ProtocolType    ProtocolType `json:"type"`
	ONVIFSupported  bool         `json:"onvif_supported"`
	AuthRequired    bool         `json:"auth_required"`
	Confidence      Confidence   `json:"confidence"`

	// Preenchidos pela camada externa antes de uma captura.
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	PreferredPath string `json:"preferred_path,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

func (d CameraDescriptor) HostPort() string {
	port := d.Port
	if port == 0 {
		port = 80
	}
	return net.JoinHostPort(d.Address, strconv.Itoa(port))
}

func (d CameraDescriptor) HasCredentials() bool {
	return d.Username != ""
}

// CaptureAttempt registra um degrau da escada de captura.
type CaptureAttempt struct {
	Method     string `json:"method"`
	URL        string `json:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// CaptureResult é produzido uma vez por invocação da escada e não é retido.
type CaptureResult struct {
	Succeeded     bool             `json:"success"`
	MethodUsed    string           `json:"method_used,omitempty"`
	Image         []byte           `json:"-"`
	ContentType   string           `json:"content_type,omitempty"`
	ErrorKind     ErrorKind        `json:"error_kind,omitempty"`
	Error         string           `json:"error,omitempty"`
	Err           error            `json:"-"`
	ElapsedMs     int64            `json:"elapsed_ms"`
	Resolution    string           `json:"resolution,omitempty"`
	FileSizeBytes int              `json:"file_size_bytes,omitempty"`
	Attempts      []CaptureAttempt `json:"attempts,omitempty"`
	SnapshotURL   string           `json:"snapshot_url,omitempty"`
}

// DiscoveryReport é o resumo serializável de uma passada de discovery.
type DiscoveryReport struct {
	Timestamp  time.Time        `json:"timestamp"`
	TotalFound int              `json:"totalFound"`
	Subnets    []string         `json:"subnets,omitempty"`
	ElapsedMs  int64            `json:"elapsedMs"`
	Cameras    []ReportedCamera `json:"cameras"`
}

type ReportedCamera struct {
	IP                string       `json:"ip"`
	Port              int          `json:"port"`
	Manufacturer      string       `json:"manufacturer"`
	Model             string       `json:"model"`
	Firmware          string       `json:"firmware"`
	Type              ProtocolType `json:"type"`
	ONVIFSupport      bool         `json:"onvifSupport"`
	AuthRequired      bool         `json:"authRequired"`
	SuggestedName     string       `json:"suggested_name"`
	SuggestedUsername string       `json:"suggested_username"`
	Confidence        Confidence   `json:"confidence"`
}
