// internal/scanner/prober.go
package scanner

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Prober decide se um endereço está vivo.
type Prober interface {
	Alive(ctx context.Context, addr string) bool
}

// TCPProber considera o host vivo quando qualquer uma das portas aceita conexão TCP
// ou a recusa ativamente (RST). Só timeout e host inalcançável contam como ausente.
// As portas são discadas em paralelo e a primeira resposta positiva encerra as demais.
type TCPProber struct {
	Ports   []int
	Timeout time.Duration
	dialer  net.Dialer
}

func NewTCPProber(ports []int, timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = time.Second
	}
	if len(ports) == 0 {
		ports = []int{80, 554, 8080, 8000, 8554, 443, 8443}
	}
	return &TCPProber{Ports: ports, Timeout: timeout}
}

func (p *TCPProber) Alive(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	results := make(chan bool, len(p.Ports))
	for _, port := range p.Ports {
		go func(port int) {
			conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
			if err != nil {
				// RST veio do próprio host: ele existe, só não escuta nessa porta
				results <- errors.Is(err, syscall.ECONNREFUSED)
				return
			}
			_ = conn.Close()
			results <- true
		}(port)
	}

	for range p.Ports {
		if <-results {
			return true
		}
	}
	return false
}

// ProberFunc adapta uma função comum para Prober.
type ProberFunc func(ctx context.Context, addr string) bool

func (f ProberFunc) Alive(ctx context.Context, addr string) bool { return f(ctx, addr) }
