package occupancy

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"unplug/internal/logging"
)

type processHandle interface {
	Terminate() error
	Kill() error
	Running() (bool, error)
}

type gopsutilHandle struct {
	proc *process.Process
}

func (h gopsutilHandle) Terminate() error       { return h.proc.Terminate() }
func (h gopsutilHandle) Kill() error            { return h.proc.Kill() }
func (h gopsutilHandle) Running() (bool, error) { return h.proc.IsRunning() }

// Terminator ends processes, asking politely first and escalating to a hard
// kill when the process is still running after the grace period.
type Terminator struct {
	grace      time.Duration
	poll       time.Duration
	logger     *slog.Logger
	newProcess func(pid int32) (processHandle, error)
}

func NewTerminator(logger *slog.Logger) *Terminator {
	return &Terminator{
		grace:  500 * time.Millisecond,
		poll:   50 * time.Millisecond,
		logger: logging.NewComponentLogger(logger, "terminator"),
		newProcess: func(pid int32) (processHandle, error) {
			p, err := process.NewProcess(pid)
			if err != nil {
				return nil, err
			}
			return gopsutilHandle{proc: p}, nil
		},
	}
}

// Terminate ends the given pids and returns the ones that survived the hard
// kill. A pid that no longer exists counts as ended.
func (t *Terminator) Terminate(ctx context.Context, pids []int32) []int32 {
	var remaining []int32
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			remaining = append(remaining, pid)
			continue
		}
		if !t.terminateOne(ctx, pid) {
			remaining = append(remaining, pid)
		}
	}
	return remaining
}

func (t *Terminator) terminateOne(ctx context.Context, pid int32) bool {
	proc, err := t.newProcess(pid)
	if err != nil {
		// Already gone.
		return true
	}

	if err := proc.Terminate(); err != nil {
		t.logger.Debug("terminate signal failed",
			logging.Int(logging.FieldPID, int(pid)), logging.Error(err))
	}
	if t.waitGone(ctx, proc) {
		t.logger.Info("process ended", logging.Int(logging.FieldPID, int(pid)))
		return true
	}

	if err := proc.Kill(); err != nil {
		t.logger.Warn("kill failed",
			logging.Int(logging.FieldPID, int(pid)), logging.Error(err))
	}
	if t.waitGone(ctx, proc) {
		t.logger.Info("process killed", logging.Int(logging.FieldPID, int(pid)))
		return true
	}
	t.logger.Warn("process survived kill", logging.Int(logging.FieldPID, int(pid)))
	return false
}

func (t *Terminator) waitGone(ctx context.Context, proc processHandle) bool {
	deadline := time.Now().Add(t.grace)
	for {
		running, err := proc.Running()
		if err != nil || !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(t.poll):
		}
	}
}
