// internal/onvif/soap.go
package onvif

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clbanning/mxj"

	"github.com/sua-org/cam-scout/internal/camhttp"
)

const (
	DeviceServicePath = "/onvif/device_service"
	MediaServicePath  = "/onvif/media_service"

	ActionGetCapabilities      = "http://www.onvif.org/ver10/device/wsdl/GetCapabilities"
	ActionGetDeviceInformation = "http://www.onvif.org/ver10/device/wsdl/GetDeviceInformation"
	ActionGetProfiles          = "http://www.onvif.org/ver10/media/wsdl/GetProfiles"
	ActionGetSnapshotURI       = "http://www.onvif.org/ver10/media/wsdl/GetSnapshotUri"
)

var ErrFault = errors.New("onvif: SOAP fault")

// Envelope embrulha um corpo SOAP 1.2.
func Envelope(body string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"` +
		` xmlns:tds="http://www.onvif.org/ver10/device/wsdl"` +
		` xmlns:trt="http://www.onvif.org/ver10/media/wsdl"` +
		` xmlns:tt="http://www.onvif.org/ver10/schema">` +
		`<s:Body>` + body + `</s:Body></s:Envelope>`)
}

func GetCapabilitiesRequest() []byte {
	return Envelope(`<tds:GetCapabilities><tds:Category>All</tds:Category></tds:GetCapabilities>`)
}

func GetDeviceInformationRequest() []byte {
	return Envelope(`<tds:GetDeviceInformation/>`)
}

func GetProfilesRequest() []byte {
	return Envelope(`<trt:GetProfiles/>`)
}

func GetSnapshotURIRequest(profileToken string) []byte {
	return Envelope(`<trt:GetSnapshotUri><trt:ProfileToken>` + xmlEscape(profileToken) +
		`</trt:ProfileToken></trt:GetSnapshotUri>`)
}

// ContentType devolve o content-type SOAP 1.2 com a action embutida.
func ContentType(action string) string {
	return fmt.Sprintf(`application/soap+xml; charset=utf-8; action="%s"`, action)
}

// ActionOf tenta descobrir qual operação um request SOAP carrega, olhando o
// header SOAPAction, o parâmetro action do content-type e, por último, o corpo.
func ActionOf(r *http.Request, body []byte) string {
	if a := strings.Trim(r.Header.Get("SOAPAction"), `"`); a != "" {
		return a
	}
	ct := r.Header.Get("Content-Type")
	if i := strings.Index(ct, `action="`); i >= 0 {
		rest := ct[i+len(`action="`):]
		if j := strings.IndexByte(rest, '"'); j >= 0 {
			return rest[:j]
		}
	}
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return ""
	}
	bodyNode, err := m.ValueForPath("Envelope.Body")
	if err != nil {
		return ""
	}
	if bm, ok := bodyNode.(map[string]interface{}); ok {
		for k := range bm {
			switch k {
			case "GetCapabilities":
				return ActionGetCapabilities
			case "GetDeviceInformation":
				return ActionGetDeviceInformation
			case "GetProfiles":
				return ActionGetProfiles
			case "GetSnapshotUri":
				return ActionGetSnapshotURI
			}
		}
	}
	return ""
}

type DeviceInformation struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	HardwareID      string `json:"hardware_id"`
}

type Capabilities struct {
	DeviceXAddr string
	MediaXAddr  string
}

func parse(b []byte) (mxj.Map, error) {
	m, err := mxj.NewMapXml(b)
	if err != nil {
		return nil, fmt.Errorf("onvif: invalid SOAP envelope: %w", err)
	}
	if _, err := m.ValueForPath("Envelope.Body.Fault"); err == nil {
		reason, _ := m.ValueForPathString("Envelope.Body.Fault.Reason.Text.#text")
		if reason == "" {
			reason, _ = m.ValueForPathString("Envelope.Body.Fault.Reason.Text")
		}
		return nil, fmt.Errorf("%w: %s", ErrFault, reason)
	}
	return m, nil
}

func ParseCapabilities(b []byte) (Capabilities, error) {
	m, err := parse(b)
	if err != nil {
		return Capabilities{}, err
	}
	if _, err := m.ValueForPath("Envelope.Body.GetCapabilitiesResponse"); err != nil {
		return Capabilities{}, fmt.Errorf("onvif: GetCapabilitiesResponse missing")
	}
	var caps Capabilities
	caps.DeviceXAddr, _ = m.ValueForPathString("Envelope.Body.GetCapabilitiesResponse.Capabilities.Device.XAddr")
	caps.MediaXAddr, _ = m.ValueForPathString("Envelope.Body.GetCapabilitiesResponse.Capabilities.Media.XAddr")
	return caps, nil
}

func ParseDeviceInformation(b []byte) (DeviceInformation, error) {
	m, err := parse(b)
	if err != nil {
		return DeviceInformation{}, err
	}
	const base = "Envelope.Body.GetDeviceInformationResponse."
	var info DeviceInformation
	info.Manufacturer, _ = m.ValueForPathString(base + "Manufacturer")
	info.Model, _ = m.ValueForPathString(base + "Model")
	info.FirmwareVersion, _ = m.ValueForPathString(base + "FirmwareVersion")
	info.SerialNumber, _ = m.ValueForPathString(base + "SerialNumber")
	info.HardwareID, _ = m.ValueForPathString(base + "HardwareId")
	if info.Manufacturer == "" && info.Model == "" {
		return info, fmt.Errorf("onvif: GetDeviceInformationResponse without identity")
	}
	return info, nil
}

// ParseProfileToken devolve o token do primeiro perfil de mídia.
func ParseProfileToken(b []byte) (string, error) {
	m, err := parse(b)
	if err != nil {
		return "", err
	}
	profiles, err := m.ValuesForPath("Envelope.Body.GetProfilesResponse.Profiles")
	if err != nil || len(profiles) == 0 {
		return "", fmt.Errorf("onvif: no media profiles")
	}
	if p, ok := profiles[0].(map[string]interface{}); ok {
		if tok, ok := p["-token"].(string); ok && tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("onvif: profile without token")
}

func ParseSnapshotURI(b []byte) (string, error) {
	m, err := parse(b)
	if err != nil {
		return "", err
	}
	uri, _ := m.ValueForPathString("Envelope.Body.GetSnapshotUriResponse.MediaUri.Uri")
	if uri == "" {
		return "", fmt.Errorf("onvif: GetSnapshotUriResponse without Uri")
	}
	return strings.TrimSpace(uri), nil
}

// Client faz chamadas SOAP usando o cliente HTTP de câmera.
type Client struct {
	http *camhttp.Client
}

func NewClient(h *camhttp.Client) *Client {
	if h == nil {
		h = camhttp.NewClient()
	}
	return &Client{http: h}
}

// Call envia um envelope e devolve o corpo da resposta com o status HTTP.
func (c *Client) Call(ctx context.Context, endpoint, action string, envelope []byte, creds *camhttp.Credentials) ([]byte, int, error) {
	resp, err := c.http.Do(ctx, camhttp.Request{
		Method:      http.MethodPost,
		URL:         endpoint,
		Body:        envelope,
		ContentType: ContentType(action),
		Header:      http.Header{"SOAPAction": []string{`"` + action + `"`}},
		Creds:       creds,
	})
	if err != nil {
		return nil, 0, err
	}
	body, err := camhttp.ReadBody(resp, 1<<20)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}
