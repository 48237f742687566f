// internal/scanner/scanner.go
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sync/errgroup"

	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
)

// Scanner varre faixas /24 procurando hosts vivos.
type Scanner struct {
	prober        Prober
	maxInFlight   int
	defaultPrefix string
	interfaces    func(ctx context.Context) ([]string, error)
	log           *slog.Logger
}

func New(cfg config.ScanConfig) *Scanner {
	return NewWithProber(NewTCPProber(cfg.ProbePorts, cfg.ProbeTimeout), cfg.MaxConcurrency, cfg.DefaultPrefix)
}

func NewWithProber(p Prober, maxInFlight int, defaultPrefix string) *Scanner {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Scanner{
		prober:        p,
		maxInFlight:   maxInFlight,
		defaultPrefix: defaultPrefix,
		interfaces:    LocalPrefixes,
		log:           slog.With("component", "scanner"),
	}
}

// Scan sonda prefix.1 … prefix.254 e devolve os endereços vivos, sem duplicatas e ordenados.
// Se o ctx vencer no meio da varredura, devolve o resultado parcial sem erro.
func (s *Scanner) Scan(ctx context.Context, prefix string) ([]string, error) {
	if !config.ValidPrefix(prefix) {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidSubnet, prefix)
	}

	start := time.Now()
	var (
		mu    sync.Mutex
		alive = make(map[string]struct{})
	)

	var g errgroup.Group
	g.SetLimit(s.maxInFlight)
	for i := 1; i <= 254; i++ {
		if ctx.Err() != nil {
			break
		}
		addr := fmt.Sprintf("%s.%d", prefix, i)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if s.prober.Alive(ctx, addr) {
				mu.Lock()
				alive[addr] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := sortedAddrs(alive)
	s.log.Info("scan finished",
		"prefix", prefix,
		"alive", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
		"partial", ctx.Err() != nil,
	)
	return out, nil
}

// ScanAll varre vários prefixos e junta os resultados.
func (s *Scanner) ScanAll(ctx context.Context, prefixes []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range prefixes {
		if ctx.Err() != nil {
			break
		}
		hosts, err := s.Scan(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, h := range hosts {
			seen[h] = struct{}{}
		}
	}
	return sortedAddrs(seen), nil
}

// Prefixes resolve quais /24 varrer. Um prefixo explícito vence; sem ele usamos as
// interfaces IPv4 locais e, por último, o prefixo default.
func (s *Scanner) Prefixes(ctx context.Context, explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if s.interfaces != nil {
		prefixes, err := s.interfaces(ctx)
		if err != nil {
			s.log.Warn("interface enumeration failed, using default prefix", "error", err)
		} else if len(prefixes) > 0 {
			return prefixes
		}
	}
	return []string{s.defaultPrefix}
}

// LocalPrefixes lista os /24 das interfaces IPv4 ativas que não são loopback.
func LocalPrefixes(ctx context.Context) ([]string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") || !hasFlag(iface.Flags, "up") {
			continue
		}
		for _, a := range iface.Addrs {
			prefix, ok := prefixOf(a.Addr)
			if !ok {
				continue
			}
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			out = append(out, prefix)
		}
	}
	return out, nil
}

// prefixOf extrai "a.b.c" de um endereço IPv4 (com ou sem /mask).
func prefixOf(addr string) (string, bool) {
	host := addr
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		host = addr[:i]
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", false
	}
	v4 := ip.To4()
	if v4 == nil || v4.IsLoopback() || v4.IsLinkLocalUnicast() {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2]), true
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func sortedAddrs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return lastOctetLess(out[i], out[j])
	})
	return out
}

func lastOctetLess(a, b string) bool {
	ia, ib := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ia == nil || ib == nil {
		return a < b
	}
	for k := 0; k < 4; k++ {
		if ia[k] != ib[k] {
			return ia[k] < ib[k]
		}
	}
	return false
}
