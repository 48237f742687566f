package onvif

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"
)

const deviceInfoResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope" xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
  <SOAP-ENV:Body>
    <tds:GetDeviceInformationResponse>
      <tds:Manufacturer>Hikvision</tds:Manufacturer>
      <tds:Model>DS-2CD2043G2-I</tds:Model>
      <tds:FirmwareVersion>V5.7.3 build 220112</tds:FirmwareVersion>
      <tds:SerialNumber>DS-2CD2043G2-I20220101AAWRJ00000</tds:SerialNumber>
      <tds:HardwareId>88</tds:HardwareId>
    </tds:GetDeviceInformationResponse>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestParseDeviceInformation(t *testing.T) {
	info, err := ParseDeviceInformation([]byte(deviceInfoResponse))
	if err != nil {
		t.Fatalf("ParseDeviceInformation: %v", err)
	}
	if info.Manufacturer != "Hikvision" || info.Model != "DS-2CD2043G2-I" {
		t.Fatalf("identity = %s/%s, want Hikvision/DS-2CD2043G2-I", info.Manufacturer, info.Model)
	}
	if info.FirmwareVersion != "V5.7.3 build 220112" || info.HardwareID != "88" {
		t.Fatalf("firmware/hw = %q/%q", info.FirmwareVersion, info.HardwareID)
	}
}

func TestParseCapabilities(t *testing.T) {
	body := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:tds="http://www.onvif.org/ver10/device/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema"><s:Body>
<tds:GetCapabilitiesResponse><tds:Capabilities>
<tt:Device><tt:XAddr>http://10.0.0.5/onvif/device_service</tt:XAddr></tt:Device>
<tt:Media><tt:XAddr>http://10.0.0.5/onvif/media_service</tt:XAddr></tt:Media>
</tds:Capabilities></tds:GetCapabilitiesResponse></s:Body></s:Envelope>`
	caps, err := ParseCapabilities([]byte(body))
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	if caps.MediaXAddr != "http://10.0.0.5/onvif/media_service" {
		t.Fatalf("media xaddr = %q", caps.MediaXAddr)
	}
}

func TestParseProfileTokenAndSnapshotURI(t *testing.T) {
	profiles := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema"><s:Body>
<trt:GetProfilesResponse>
<trt:Profiles token="MainStream" fixed="true"><tt:Name>main</tt:Name></trt:Profiles>
<trt:Profiles token="SubStream" fixed="true"><tt:Name>sub</tt:Name></trt:Profiles>
</trt:GetProfilesResponse></s:Body></s:Envelope>`
	tok, err := ParseProfileToken([]byte(profiles))
	if err != nil || tok != "MainStream" {
		t.Fatalf("ParseProfileToken = %q, %v; want MainStream", tok, err)
	}

	snap := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema"><s:Body>
<trt:GetSnapshotUriResponse><trt:MediaUri><tt:Uri>http://10.0.0.5/onvif/snapshot</tt:Uri>
<tt:InvalidAfterConnect>false</tt:InvalidAfterConnect></trt:MediaUri></trt:GetSnapshotUriResponse></s:Body></s:Envelope>`
	uri, err := ParseSnapshotURI([]byte(snap))
	if err != nil || uri != "http://10.0.0.5/onvif/snapshot" {
		t.Fatalf("ParseSnapshotURI = %q, %v", uri, err)
	}
}

func TestParseFault(t *testing.T) {
	fault := `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><s:Fault>
<s:Code><s:Value>s:Sender</s:Value></s:Code>
<s:Reason><s:Text xml:lang="en">Sender not Authorized</s:Text></s:Reason>
</s:Fault></s:Body></s:Envelope>`
	if _, err := ParseSnapshotURI([]byte(fault)); !errors.Is(err, ErrFault) {
		t.Fatalf("err = %v, want ErrFault", err)
	}
	if _, err := ParseDeviceInformation([]byte("not xml")); err == nil {
		t.Fatalf("garbage parsed without error")
	}
}

func TestActionOf(t *testing.T) {
	req := httptest.NewRequest("POST", DeviceServicePath, nil)
	req.Header.Set("SOAPAction", `"`+ActionGetCapabilities+`"`)
	if got := ActionOf(req, nil); got != ActionGetCapabilities {
		t.Errorf("SOAPAction header: got %q", got)
	}

	req = httptest.NewRequest("POST", MediaServicePath, nil)
	req.Header.Set("Content-Type", ContentType(ActionGetSnapshotURI))
	if got := ActionOf(req, nil); got != ActionGetSnapshotURI {
		t.Errorf("content-type action: got %q", got)
	}

	body := GetDeviceInformationRequest()
	req = httptest.NewRequest("POST", DeviceServicePath, bytes.NewReader(body))
	if got := ActionOf(req, body); got != ActionGetDeviceInformation {
		t.Errorf("body action: got %q", got)
	}
}

func TestSnapshotRequestEscapesToken(t *testing.T) {
	b := GetSnapshotURIRequest(`a<b&"c"`)
	if !bytes.Contains(b, []byte("a&lt;b&amp;&quot;c&quot;")) {
		t.Fatalf("token not escaped: %s", b)
	}
}
