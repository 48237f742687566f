// internal/camhttp/client.go
package camhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) usable() bool {
	return c != nil && c.Username != ""
}

// Client é o http.Client compartilhado por classifier, escada de captura e ONVIF.
// Câmeras em rede interna usam certificado autoassinado, então TLS é sempre inseguro.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	tr := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec - uso consciente em rede interna
		},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   true,
	}
	return &Client{
		// Timeout fica no ctx de cada chamada.
		http: &http.Client{
			Timeout:   0,
			Transport: tr,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Request descreve uma chamada para a câmera.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Header      http.Header
	Creds       *Credentials
}

// Do envia a requisição. Com credenciais, Basic vai preemptivo; se a câmera responder
// 401 com desafio Digest, respondemos uma única vez com as mesmas credenciais.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	resp, err := c.send(ctx, r, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !r.Creds.usable() {
		return resp, nil
	}

	challenge, err := parseDigestAuthHeader(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		// Desafio Basic: as credenciais já foram enviadas, a recusa é definitiva.
		return resp, nil
	}
	drain(resp)

	authValue, err := challenge.authorization(r.Method, r.URL, r.Creds)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, r, authValue)
}

func (c *Client) Get(ctx context.Context, rawURL string, creds *Credentials) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Creds: creds})
}

func (c *Client) send(ctx context.Context, r Request, authorization string) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	req.Header.Set("User-Agent", "cam-scout/1.0")

	switch {
	case authorization != "":
		req.Header.Set("Authorization", authorization)
	case r.Creds.usable():
		req.SetBasicAuth(r.Creds.Username, r.Creds.Password)
	}

	return c.http.Do(req)
}

// ReadBody lê no máximo limit bytes e fecha o corpo.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	if limit <= 0 {
		limit = 10 << 20
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Drain descarta e fecha o corpo de uma resposta que não interessa.
func Drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		drain(resp)
	}
}

// URL monta scheme://host:port/path.
func URL(host string, port int, useTLS bool, path string) string {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)), path)
}

// IsTLSPort diz se a porta é convencionalmente HTTPS.
func IsTLSPort(port int) bool {
	return port == 443 || port == 8443
}
