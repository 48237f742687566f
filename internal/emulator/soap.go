// internal/emulator/soap.go
package emulator

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/onvif"
)

const soapContentType = "application/soap+xml; charset=utf-8"

const profileToken = "Profile_1"

func (e *Emulator) handleDeviceService(c *gin.Context) {
	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))

	switch onvif.ActionOf(c.Request, body) {
	case onvif.ActionGetCapabilities:
		base := requestBase(c)
		c.Data(http.StatusOK, soapContentType, onvif.Envelope(fmt.Sprintf(
			`<tds:GetCapabilitiesResponse><tds:Capabilities>`+
				`<tt:Device><tt:XAddr>%s%s</tt:XAddr></tt:Device>`+
				`<tt:Media><tt:XAddr>%s%s</tt:XAddr>`+
				`<tt:StreamingCapabilities><tt:RTP_TCP>true</tt:RTP_TCP></tt:StreamingCapabilities></tt:Media>`+
				`</tds:Capabilities></tds:GetCapabilitiesResponse>`,
			base, onvif.DeviceServicePath, base, onvif.MediaServicePath)))
	default:
		// Dispositivos simples respondem identidade para qualquer operação do device service.
		c.Data(http.StatusOK, soapContentType, onvif.Envelope(fmt.Sprintf(
			`<tds:GetDeviceInformationResponse>`+
				`<tds:Manufacturer>%s</tds:Manufacturer>`+
				`<tds:Model>%s</tds:Model>`+
				`<tds:FirmwareVersion>%s</tds:FirmwareVersion>`+
				`<tds:SerialNumber>%s</tds:SerialNumber>`+
				`<tds:HardwareId>%s</tds:HardwareId>`+
				`</tds:GetDeviceInformationResponse>`,
			e.cfg.Manufacturer, e.cfg.Model, e.cfg.Firmware, e.cfg.SerialNumber, e.cfg.HardwareID)))
	}
}

func (e *Emulator) handleMediaService(c *gin.Context) {
	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))

	switch onvif.ActionOf(c.Request, body) {
	case onvif.ActionGetProfiles:
		c.Data(http.StatusOK, soapContentType, onvif.Envelope(fmt.Sprintf(
			`<trt:GetProfilesResponse>`+
				`<trt:Profiles token="%s" fixed="true"><tt:Name>MainStream</tt:Name>`+
				`<tt:VideoEncoderConfiguration token="VideoEncoder_1"><tt:Encoding>H264</tt:Encoding>`+
				`<tt:Resolution><tt:Width>%d</tt:Width><tt:Height>%d</tt:Height></tt:Resolution>`+
				`</tt:VideoEncoderConfiguration></trt:Profiles>`+
				`</trt:GetProfilesResponse>`,
			profileToken, e.cfg.Width, e.cfg.Height)))
	case onvif.ActionGetSnapshotURI, "":
		c.Data(http.StatusOK, soapContentType, onvif.Envelope(fmt.Sprintf(
			`<trt:GetSnapshotUriResponse><trt:MediaUri>`+
				`<tt:Uri>%s/onvif/snapshot</tt:Uri>`+
				`<tt:InvalidAfterConnect>false</tt:InvalidAfterConnect>`+
				`<tt:InvalidAfterReboot>false</tt:InvalidAfterReboot>`+
				`<tt:Timeout>PT60S</tt:Timeout>`+
				`</trt:MediaUri></trt:GetSnapshotUriResponse>`,
			requestBase(c))))
	default:
		c.Data(http.StatusBadRequest, soapContentType, onvif.Envelope(
			`<s:Fault><s:Code><s:Value>s:Sender</s:Value></s:Code>`+
				`<s:Reason><s:Text xml:lang="en">Action not supported</s:Text></s:Reason></s:Fault>`))
	}
}

// requestBase monta scheme://host a partir do request, para a URI apontar de volta
// para o mesmo listener (inclusive em porta aleatória de teste).
func requestBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
