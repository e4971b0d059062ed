package occupancy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"unplug/internal/logging"
	"unplug/internal/volume"
)

// ProcessTable sweeps the full process table for occupants of a drive.
type ProcessTable interface {
	Occupants(ctx context.Context, letter string) ([]Occupant, error)
}

type gopsutilTable struct {
	logger *slog.Logger
}

// NewProcessTable returns the gopsutil backed ProcessTable.
func NewProcessTable(logger *slog.Logger) ProcessTable {
	return &gopsutilTable{logger: logging.NewComponentLogger(logger, "occupancy-sweep")}
}

func (t *gopsutilTable) Occupants(ctx context.Context, letter string) ([]Occupant, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	prefix := volume.Prefix(letter)
	var out []Occupant
	for _, p := range procs {
		detail := ""
		if exe, err := p.ExeWithContext(ctx); err == nil && hasDrivePrefix(exe, prefix) {
			detail = "running from drive"
		} else if cwd, err := p.CwdWithContext(ctx); err == nil && hasDrivePrefix(cwd, prefix) {
			detail = "working directory on drive"
		}
		if detail == "" {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			name = "unknown"
		}
		out = append(out, Occupant{PID: p.Pid, Name: name, Detail: detail})
	}
	return out, nil
}

func hasDrivePrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix)
}
