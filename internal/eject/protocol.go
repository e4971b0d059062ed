package eject

import (
	"fmt"
	"log/slog"
	"time"

	"unplug/internal/logging"
	"unplug/internal/volume"
)

// ProtocolOptions tunes the retry tiers of the eject sequence. Zero values
// fall back to the reference timings.
type ProtocolOptions struct {
	LockAttempts    int
	LockDelay       time.Duration
	RemovalAttempts int
	RemovalDelay    time.Duration
	Settle          time.Duration
}

func (o *ProtocolOptions) normalize() {
	if o.LockAttempts <= 0 {
		o.LockAttempts = 5
	}
	if o.LockDelay <= 0 {
		o.LockDelay = 100 * time.Millisecond
	}
	if o.RemovalAttempts <= 0 {
		o.RemovalAttempts = 3
	}
	if o.RemovalDelay <= 0 {
		o.RemovalDelay = 500 * time.Millisecond
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
}

// Protocol runs the ordered eject sequence against a Devices implementation.
// None of the steps carries a timeout; a wedged driver call stalls the
// sequence until the OS releases it.
type Protocol struct {
	devices volume.Devices
	logger  *slog.Logger
	opts    ProtocolOptions
	sleep   func(time.Duration)
}

func NewProtocol(devices volume.Devices, logger *slog.Logger, opts ProtocolOptions) *Protocol {
	opts.normalize()
	return &Protocol{
		devices: devices,
		logger:  logging.NewComponentLogger(logger, "eject-protocol"),
		opts:    opts,
		sleep:   time.Sleep,
	}
}

// SmartEject runs the full sequence: open, identify, flush, lock, dismount,
// close, settle, then hardware removal. Later steps run regardless of
// earlier best-effort failures; only the open and the final removal are
// decisive.
func (p *Protocol) SmartEject(drive string) error {
	log := p.logger.With(logging.String(logging.FieldDrive, drive))

	h, err := p.devices.OpenVolume(drive)
	if err != nil {
		return err
	}

	identity, idErr := p.devices.QueryIdentity(h)
	if idErr != nil {
		log.Warn("device identity unavailable, removal will degrade to media eject",
			logging.Error(idErr))
	}

	if err := p.devices.Flush(h); err != nil {
		log.Debug("flush failed", logging.String(logging.FieldStep, "flush"), logging.Error(err))
	}

	if err := p.lockWithRetry(h); err != nil {
		log.Debug("volume lock never acquired, dismounting anyway",
			logging.String(logging.FieldStep, "lock"), logging.Error(err))
	}

	if err := p.devices.Dismount(h); err != nil {
		log.Debug("dismount failed", logging.String(logging.FieldStep, "dismount"), logging.Error(err))
	}

	// The handle must be gone before hardware removal; a still-open handle
	// is itself a veto cause.
	if err := p.devices.CloseVolume(h); err != nil {
		log.Warn("close failed", logging.Error(err))
	}

	p.sleep(p.opts.Settle)

	if err := p.removeHardware(log, drive, identity, idErr == nil); err != nil {
		return err
	}
	p.devices.NotifyDriveChange(drive)
	log.Info("drive detached")
	return nil
}

// CheapEject tries hardware removal alone, skipping flush, lock and
// dismount. Used as the optimistic first attempt of a scan.
func (p *Protocol) CheapEject(drive string) error {
	log := p.logger.With(logging.String(logging.FieldDrive, drive))

	h, err := p.devices.OpenVolume(drive)
	if err != nil {
		return err
	}
	identity, idErr := p.devices.QueryIdentity(h)
	if err := p.devices.CloseVolume(h); err != nil {
		log.Warn("close failed", logging.Error(err))
	}

	if err := p.removeHardware(log, drive, identity, idErr == nil); err != nil {
		return err
	}
	p.devices.NotifyDriveChange(drive)
	log.Info("drive detached without dismount")
	return nil
}

func (p *Protocol) lockWithRetry(h volume.Handle) error {
	var lastErr error
	for attempt := 0; attempt < p.opts.LockAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.opts.LockDelay)
		}
		if lastErr = p.devices.Lock(h); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *Protocol) removeHardware(log *slog.Logger, drive string, identity volume.Identity, haveIdentity bool) error {
	var lastErr error
	for attempt := 0; attempt < p.opts.RemovalAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.opts.RemovalDelay)
		}
		if lastErr = p.removeOnce(log, drive, identity, haveIdentity); lastErr == nil {
			return nil
		}
		log.Debug("hardware removal attempt failed",
			logging.Int("attempt", attempt+1), logging.Error(lastErr))
	}
	return lastErr
}

func (p *Protocol) removeOnce(log *slog.Logger, drive string, identity volume.Identity, haveIdentity bool) error {
	if !haveIdentity {
		return p.devices.EjectByLetter(drive)
	}
	interfaces, err := p.devices.DiskInterfaces()
	if err != nil {
		return fmt.Errorf("enumerate disk interfaces: %w", err)
	}
	for _, di := range interfaces {
		if di.Identity == identity {
			return p.devices.RequestRemoval(di)
		}
	}
	// The backing interface is not enumerable (virtual drive, filtered
	// class). Fall back to ejecting media through the volume path.
	log.Debug("no matching disk interface, degrading to media eject")
	return p.devices.EjectByLetter(drive)
}
