package sampler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"unplug/internal/logging"
)

// Probe answers the OS-specific questions gopsutil cannot: the volume label
// and whether the backing drive is removable.
type Probe interface {
	Label(root string) string
	Removable(root string) bool
}

type gopsutilSource struct {
	probe  Probe
	logger *slog.Logger
}

// NewSystemSource returns the gopsutil backed Source with the native probe.
func NewSystemSource(logger *slog.Logger) Source {
	return &gopsutilSource{
		probe:  systemProbe{},
		logger: logging.NewComponentLogger(logger, "sampler-source"),
	}
}

func (s *gopsutilSource) Volumes(ctx context.Context) ([]Volume, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	volumes := make([]Volume, 0, len(partitions))
	for _, part := range partitions {
		root := part.Mountpoint
		if !strings.HasSuffix(root, `\`) && !strings.HasSuffix(root, "/") {
			root += `\`
		}
		v := Volume{
			MountPoint: part.Mountpoint,
			Label:      s.probe.Label(root),
			Removable:  s.probe.Removable(root),
		}
		if usage, err := disk.UsageWithContext(ctx, part.Mountpoint); err == nil {
			v.FreeBytes = usage.Free
			v.TotalBytes = usage.Total
		} else {
			s.logger.Debug("usage query failed",
				logging.String("mount", part.Mountpoint), logging.Error(err))
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}
