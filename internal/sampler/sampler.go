package sampler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"unplug/internal/logging"
)

// Volume is one mounted filesystem as seen at sampling time.
type Volume struct {
	MountPoint string `json:"mount_point"`
	Label      string `json:"label"`
	FreeBytes  uint64 `json:"free_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
	Removable  bool   `json:"removable"`
}

// Snapshot is an immutable view of the mounted volumes. A new value replaces
// the old one atomically; the contents are never mutated after publication.
type Snapshot struct {
	Volumes []Volume  `json:"volumes"`
	TakenAt time.Time `json:"taken_at"`
}

// Source lists the currently mounted volumes.
type Source interface {
	Volumes(ctx context.Context) ([]Volume, error)
}

// Sampler owns the sampling loop and the published snapshot.
type Sampler struct {
	source      Source
	interval    time.Duration
	systemDrive string
	logger      *slog.Logger

	snapshot atomic.Pointer[Snapshot]
	kick     chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(source Source, interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	systemDrive := os.Getenv("SystemDrive")
	if systemDrive == "" {
		systemDrive = "C:"
	}
	s := &Sampler{
		source:      source,
		interval:    interval,
		systemDrive: systemDrive,
		logger:      logging.NewComponentLogger(logger, "sampler"),
		kick:        make(chan struct{}, 1),
	}
	s.snapshot.Store(&Snapshot{TakenAt: time.Now()})
	return s
}

func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("sampler already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Current returns the latest snapshot. Never nil.
func (s *Sampler) Current() *Snapshot {
	return s.snapshot.Load()
}

// Refresh schedules an immediate sampling cycle. Non-blocking; a refresh
// already pending is enough.
func (s *Sampler) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Removable filters the current snapshot down to the volumes the eject
// subsystem cares about: removable, letter-rooted mounts that are not the
// system drive.
func (s *Sampler) Removable() []Volume {
	snap := s.Current()
	out := make([]Volume, 0, len(snap.Volumes))
	for _, v := range snap.Volumes {
		if !v.Removable || len(v.MountPoint) > 3 {
			continue
		}
		if strings.EqualFold(strings.TrimRight(v.MountPoint, `:\`), strings.TrimRight(s.systemDrive, `:\`)) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()

	s.collect(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collect(ctx)
		case <-s.kick:
			s.collect(ctx)
		}
	}
}

func (s *Sampler) collect(ctx context.Context) {
	volumes, err := s.source.Volumes(ctx)
	if err != nil {
		// Keep the previous snapshot; a transient enumeration failure is
		// not worth blanking the display.
		s.logger.Warn("volume sampling failed", logging.Error(err))
		return
	}
	s.snapshot.Store(&Snapshot{Volumes: volumes, TakenAt: time.Now()})
}
