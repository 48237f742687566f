// internal/classifier/deviceinfo.go
package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clbanning/mxj"
	"github.com/oliveagle/jsonpath"
)

// DefaultInfoEndpoints são os caminhos de "device info" conhecidos por fabricante.
var DefaultInfoEndpoints = []string{
	"/cgi-bin/deviceInfo.cgi",
	"/api/v1/deviceInfo",
	"/ISAPI/System/deviceInfo",
	"/config/deviceInfo",
}

// DeviceInfo é o que conseguimos extrair de um corpo de device info.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Firmware     string
}

func (i DeviceInfo) empty() bool {
	return i.Manufacturer == "" && i.Model == "" && i.Firmware == ""
}

var (
	modelPaths        = []string{"$.deviceName", "$.model", "$.DeviceInfo.model"}
	firmwarePaths     = []string{"$.firmwareVersion", "$.version", "$.firmware", "$.DeviceInfo.firmwareVersion"}
	manufacturerPaths = []string{"$.manufacturer", "$.vendor", "$.DeviceInfo.manufacturer"}
)

// ParseDeviceInfo aceita JSON, XML (ISAPI) ou texto key=value.
func ParseDeviceInfo(body []byte) (DeviceInfo, error) {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return DeviceInfo{}, fmt.Errorf("empty device info body")
	}

	var (
		info DeviceInfo
		err  error
	)
	switch b[0] {
	case '{':
		info, err = parseJSONInfo(b)
	case '<':
		info, err = parseXMLInfo(b)
	default:
		info = parseKeyValueInfo(string(b))
	}
	if err != nil {
		return DeviceInfo{}, err
	}
	if info.empty() {
		return DeviceInfo{}, fmt.Errorf("device info body without known fields")
	}
	return info, nil
}

func parseJSONInfo(b []byte) (DeviceInfo, error) {
	var data interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return DeviceInfo{}, fmt.Errorf("parse device info json: %w", err)
	}
	return DeviceInfo{
		Manufacturer: firstPath(data, manufacturerPaths),
		Model:        firstPath(data, modelPaths),
		Firmware:     firstPath(data, firmwarePaths),
	}, nil
}

func firstPath(data interface{}, paths []string) string {
	for _, p := range paths {
		v, err := jsonpath.JsonPathLookup(data, p)
		if err != nil || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func parseXMLInfo(b []byte) (DeviceInfo, error) {
	m, err := mxj.NewMapXml(b)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("parse device info xml: %w", err)
	}
	var info DeviceInfo
	info.Model, _ = m.ValueForPathString("DeviceInfo.model")
	if info.Model == "" {
		info.Model, _ = m.ValueForPathString("DeviceInfo.deviceName")
	}
	info.Firmware, _ = m.ValueForPathString("DeviceInfo.firmwareVersion")
	info.Manufacturer, _ = m.ValueForPathString("DeviceInfo.manufacturer")
	return info, nil
}

// parseKeyValueInfo lê linhas "Chave=Valor" (estilo CGI Dahua/IMOU).
func parseKeyValueInfo(s string) DeviceInfo {
	var info DeviceInfo
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' || r == '&' }) {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "devicename", "devicetype", "model":
			if info.Model == "" {
				info.Model = v
			}
		case "firmwareversion", "softwareversion", "version":
			if info.Firmware == "" {
				info.Firmware = v
			}
		case "manufacturer", "vendor":
			if info.Manufacturer == "" {
				info.Manufacturer = v
			}
		}
	}
	return info
}
