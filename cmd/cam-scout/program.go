// cmd/cam-scout/program.go
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/kardianos/service"
	"golang.org/x/sync/errgroup"

	"github.com/sua-org/cam-scout/internal/config"
)

// program implementa service.Interface. Start não bloqueia.
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	a, err := newApp(ctx, p.cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		// o gerenciador de serviço reinicia o processo
		os.Exit(1)
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sup.Run(gctx) })
	g.Go(func() error { return a.api.Run(gctx) })
	if err := g.Wait(); err != nil {
		slog.Error("cam-scout stopped", "error", err)
		os.Exit(1)
	}
}

func (p *program) Stop(s service.Service) error {
	slog.Info("stopping service")
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(15 * time.Second):
		slog.Warn("shutdown timed out")
	}
	return nil
}
