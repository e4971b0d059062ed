// Command unplugd runs the eject daemon, either in the foreground or under
// the platform service manager (a Windows service when installed there).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"log/slog"

	"github.com/kardianos/service"

	"unplug/internal/config"
	"unplug/internal/daemon"
	"unplug/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	foreground := flag.Bool("foreground", false, "run in the foreground instead of under the service manager")
	svcControl := flag.String("service", "", "service control action: install, uninstall, start, stop")
	flag.Parse()

	cfg, resolved, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", resolved, err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg, *foreground)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if *foreground {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := d.Run(ctx); err != nil {
			logger.Error("daemon failed", logging.Error(err))
			os.Exit(1)
		}
		return
	}

	svc, err := newService(d, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create service: %v\n", err)
		os.Exit(1)
	}
	if *svcControl != "" {
		if err := service.Control(svc, *svcControl); err != nil {
			fmt.Fprintf(os.Stderr, "service %s: %v\n", *svcControl, err)
			os.Exit(1)
		}
		return
	}
	if err := svc.Run(); err != nil {
		logger.Error("service run failed", logging.Error(err))
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config, foreground bool) (*slog.Logger, error) {
	paths := []string{cfg.LogPath()}
	if foreground {
		paths = append(paths, "stderr")
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Paths:  paths,
	})
}

func newService(d *daemon.Daemon, logger *slog.Logger) (service.Service, error) {
	prg := &program{daemon: d, logger: logger}
	return service.New(prg, &service.Config{
		Name:        "unplugd",
		DisplayName: "Unplug Eject Daemon",
		Description: "Safely detaches removable drives on request.",
		Arguments:   []string{},
	})
}

// program adapts the blocking daemon.Run to the service manager's
// non-blocking Start/Stop contract.
type program struct {
	daemon *daemon.Daemon
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		if err := p.daemon.Run(ctx); err != nil {
			p.logger.Error("daemon failed", logging.Error(err))
		}
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}
