// internal/discovery/report.go
package discovery

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sua-org/cam-scout/internal/core"
)

const suggestedUsername = "admin"

// BuildReport monta o relatório exportável a partir dos descritores.
func BuildReport(cams []core.CameraDescriptor, subnets []string, ts time.Time, elapsed time.Duration) core.DiscoveryReport {
	r := core.DiscoveryReport{
		Timestamp:  ts,
		TotalFound: len(cams),
		Subnets:    subnets,
		ElapsedMs:  elapsed.Milliseconds(),
		Cameras:    make([]core.ReportedCamera, 0, len(cams)),
	}
	for _, c := range cams {
		r.Cameras = append(r.Cameras, core.ReportedCamera{
			IP:                c.Address,
			Port:              c.Port,
			Manufacturer:      c.Manufacturer,
			Model:             c.Model,
			Firmware:          c.FirmwareVersion,
			Type:              c.ProtocolType,
			ONVIFSupport:      c.ONVIFSupported,
			AuthRequired:      c.AuthRequired,
			SuggestedName:     SuggestedName(c),
			SuggestedUsername: suggestedUsername,
			Confidence:        c.Confidence,
		})
	}
	return r
}

// SuggestedName: "<fabricante> <modelo> (<ip>)".
func SuggestedName(c core.CameraDescriptor) string {
	return fmt.Sprintf("%s %s (%s)", c.Manufacturer, c.Model, c.Address)
}

// WriteJSON grava o relatório indentado.
func WriteJSON(w io.Writer, r core.DiscoveryReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
