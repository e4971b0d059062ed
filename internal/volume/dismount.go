package volume

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Dismounter detaches a mounted filesystem through an OS utility. It is the
// manual fallback used when the in-band dismount path is unavailable.
type Dismounter interface {
	Dismount(ctx context.Context, letter string) error
}

type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execCommandRunner struct{}

func (execCommandRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type commandDismounter struct {
	tool   string
	runner commandRunner
}

// NewCommandDismounter builds a Dismounter that shells out to the given
// dismount utility (fsutil on Windows).
func NewCommandDismounter(tool string) Dismounter {
	return &commandDismounter{tool: tool, runner: execCommandRunner{}}
}

func (c *commandDismounter) Dismount(ctx context.Context, letter string) error {
	out, err := c.runner.CombinedOutput(ctx, c.tool, "volume", "dismount", Prefix(letter))
	if err == nil {
		return nil
	}
	// The utility reports "not mounted" for volumes already detached by an
	// earlier dismount. That is the state we wanted, so treat it as success.
	if strings.Contains(strings.ToLower(string(out)), "not mounted") {
		return nil
	}
	return fmt.Errorf("%s volume dismount %s: %w: %s",
		c.tool, Prefix(letter), err, strings.TrimSpace(string(out)))
}
