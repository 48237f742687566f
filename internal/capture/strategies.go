// internal/capture/strategies.go
package capture

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/onvif"
)

func credsOf(d core.CameraDescriptor) *camhttp.Credentials {
	if !d.HasCredentials() {
		return nil
	}
	return &camhttp.Credentials{Username: d.Username, Password: d.Password}
}

func (l *Ladder) httpSnapshot(path string) func(ctx context.Context, d core.CameraDescriptor) (*Frame, error) {
	return func(ctx context.Context, d core.CameraDescriptor) (*Frame, error) {
		return l.fetchImage(ctx, camhttp.URL(d.Address, d.Port, d.UseTLS, path), credsOf(d))
	}
}

// onvifSnapshot: GetProfiles -> GetSnapshotUri -> GET na URI devolvida.
func (l *Ladder) onvifSnapshot(ctx context.Context, d core.CameraDescriptor) (*Frame, error) {
	creds := credsOf(d)
	media := camhttp.URL(d.Address, d.Port, d.UseTLS, onvif.MediaServicePath)

	body, status, err := l.onvif.Call(ctx, media, onvif.ActionGetProfiles, onvif.GetProfilesRequest(), creds)
	if err != nil {
		return nil, fmt.Errorf("GetProfiles: %w", err)
	}
	if err := statusError(status, creds); err != nil {
		return &Frame{URL: media, StatusCode: status}, fmt.Errorf("GetProfiles: %w", err)
	}
	token, err := onvif.ParseProfileToken(body)
	if err != nil {
		return &Frame{URL: media, StatusCode: status}, err
	}

	body, status, err = l.onvif.Call(ctx, media, onvif.ActionGetSnapshotURI, onvif.GetSnapshotURIRequest(token), creds)
	if err != nil {
		return nil, fmt.Errorf("GetSnapshotUri: %w", err)
	}
	if err := statusError(status, creds); err != nil {
		return &Frame{URL: media, StatusCode: status}, fmt.Errorf("GetSnapshotUri: %w", err)
	}
	uri, err := onvif.ParseSnapshotURI(body)
	if err != nil {
		return &Frame{URL: media, StatusCode: status}, err
	}
	// a URI vem do dispositivo; credencial só vai para o próprio host da câmera
	if !sameHost(uri, d.Address) {
		l.log.Warn("snapshot uri points to another host, fetching without credentials",
			"camera", d.Address, "uri", uri)
		creds = nil
	}
	return l.fetchImage(ctx, uri, creds)
}

func sameHost(rawURL, address string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.EqualFold(u.Hostname(), address)
}

// fetchImage faz o GET e aplica a regra de sucesso: 200, corpo não vazio e
// content-type que não seja explicitamente de outro tipo.
func (l *Ladder) fetchImage(ctx context.Context, rawURL string, creds *camhttp.Credentials) (*Frame, error) {
	resp, err := l.http.Get(ctx, rawURL, creds)
	if err != nil {
		return nil, err
	}
	frame := &Frame{URL: rawURL, StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
	if err := statusError(resp.StatusCode, creds); err != nil {
		camhttp.Drain(resp)
		return frame, err
	}

	data, err := camhttp.ReadBody(resp, l.maxBytes)
	if err != nil {
		return frame, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return frame, fmt.Errorf("%w: empty payload", core.ErrCaptureStrategyFailed)
	}
	if !imageContentType(frame.ContentType) {
		return frame, fmt.Errorf("%w: non-image payload (%s)", core.ErrCaptureStrategyFailed, frame.ContentType)
	}
	frame.Data = data
	return frame, nil
}

func statusError(status int, creds *camhttp.Credentials) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized && creds != nil:
		return core.ErrAuthRejected
	case status == http.StatusUnauthorized:
		return core.ErrAuthRequired
	default:
		return fmt.Errorf("%w: unexpected HTTP status %d", core.ErrCaptureStrategyFailed, status)
	}
}

// imageContentType só recusa tipos que claramente não são imagem.
func imageContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/soap+xml":
		return false
	}
	return true
}
