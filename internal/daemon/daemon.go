// Package daemon wires the eject coordinator, volume sampler and IPC server
// into a single supervised process with a single-instance lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"unplug/internal/config"
	"unplug/internal/eject"
	"unplug/internal/ipc"
	"unplug/internal/logging"
	"unplug/internal/occupancy"
	"unplug/internal/sampler"
	"unplug/internal/volume"
)

// Daemon owns the long-lived workers. It also implements ipc.Controller, so
// the IPC server exposes it directly.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	coordinator *eject.Coordinator
	sampler     *sampler.Sampler

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	shutdown  context.CancelFunc
}

// New builds a daemon over the real system implementations.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	devices := volume.NewSystemDevices(logger)
	sessions := occupancy.NewSystemSessions(logger)
	scanner := occupancy.NewScanner(sessions, occupancy.NewProcessTable(logger), logger)
	terminator := occupancy.NewTerminator(logger)

	protocol := eject.NewProtocol(devices, logger, eject.ProtocolOptions{
		LockAttempts:    cfg.Eject.LockAttempts,
		LockDelay:       cfg.LockDelay(),
		RemovalAttempts: cfg.Eject.RemovalAttempts,
		RemovalDelay:    cfg.RemovalDelay(),
		Settle:          cfg.Settle(),
	})

	smp := sampler.New(sampler.NewSystemSource(logger), cfg.SamplerInterval(), logger)

	coordinator := eject.NewCoordinator(eject.Deps{
		Protocol:   protocol,
		Scanner:    scanner,
		Sessions:   sessions,
		Terminator: terminator,
		Dismounter: volume.NewCommandDismounter(cfg.Eject.DismountTool),
		Sampler:    smp,
		Logger:     logger,
	}, eject.Options{
		DisplayWindow: cfg.DisplayWindow(),
		Settle:        cfg.Settle(),
	})

	return &Daemon{
		cfg:         cfg,
		logger:      logger,
		coordinator: coordinator,
		sampler:     smp,
	}, nil
}

// Run starts the workers and the IPC server and blocks until the context is
// canceled or a shutdown is requested over IPC.
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.running = true
	d.startedAt = time.Now()
	d.shutdown = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	lock := flock.New(d.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", d.cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("release instance lock failed", logging.Error(err))
		}
	}()

	if err := d.sampler.Start(runCtx); err != nil {
		return fmt.Errorf("start sampler: %w", err)
	}
	defer d.sampler.Stop()

	if err := d.coordinator.Start(runCtx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer d.coordinator.Stop()

	server, err := ipc.NewServer(runCtx, d.cfg.SocketPath(), d, d.logger)
	if err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	server.Serve()
	defer server.Close()

	d.logger.Info("daemon started",
		logging.String("socket", d.cfg.SocketPath()),
		logging.String("lock", d.cfg.LockPath()),
		logging.Int("pid", os.Getpid()))

	<-runCtx.Done()
	d.logger.Info("daemon stopping")
	return nil
}

// Scan submits a soft eject.
func (d *Daemon) Scan(drive string) (uuid.UUID, error) {
	return d.coordinator.Scan(drive)
}

// ForceEject submits a disruptive eject.
func (d *Daemon) ForceEject(drive string, pids []int32) (uuid.UUID, error) {
	return d.coordinator.ForceEject(drive, pids)
}

// ManualDismount submits a dismount-then-eject.
func (d *Daemon) ManualDismount(drive string) (uuid.UUID, error) {
	return d.coordinator.ManualDismount(drive)
}

// KillOne submits the termination of one occupant.
func (d *Daemon) KillOne(drive string, pid int32) (uuid.UUID, error) {
	return d.coordinator.KillOne(drive, pid)
}

// EjectState reports the coordinator's current state.
func (d *Daemon) EjectState() eject.State {
	return d.coordinator.State()
}

// Snapshot returns the latest volume snapshot.
func (d *Daemon) Snapshot() *sampler.Snapshot {
	return d.sampler.Current()
}

// RemovableDrives returns the ejectable subset of the snapshot.
func (d *Daemon) RemovableDrives() []sampler.Volume {
	return d.sampler.Removable()
}

// Describe identifies this daemon instance.
func (d *Daemon) Describe() ipc.Description {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	return ipc.Description{
		PID:        os.Getpid(),
		StartedAt:  startedAt,
		SocketPath: d.cfg.SocketPath(),
		LockPath:   d.cfg.LockPath(),
	}
}

// RequestShutdown asks Run to return. Safe to call from IPC handlers.
func (d *Daemon) RequestShutdown() {
	d.mu.Lock()
	cancel := d.shutdown
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
