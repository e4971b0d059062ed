package occupancy

import (
	"context"
	"log/slog"

	"unplug/internal/logging"
)

// Scanner merges session based occupant discovery with a process-table
// sweep. It never fails; a broken discovery channel degrades to whatever the
// other channel reports.
type Scanner struct {
	sessions Sessions
	table    ProcessTable
	logger   *slog.Logger
}

func NewScanner(sessions Sessions, table ProcessTable, logger *slog.Logger) *Scanner {
	return &Scanner{
		sessions: sessions,
		table:    table,
		logger:   logging.NewComponentLogger(logger, "occupancy-scanner"),
	}
}

// Scan returns every process attributable to the drive, deduplicated by pid.
// Session entries win the dedup because their names come from the tracking
// facility's application metadata.
func (s *Scanner) Scan(ctx context.Context, letter string) []Occupant {
	merged := s.SessionOnly(letter)
	seen := make(map[int32]struct{}, len(merged))
	for _, occ := range merged {
		seen[occ.PID] = struct{}{}
	}
	for _, occ := range s.Sweep(ctx, letter) {
		if _, dup := seen[occ.PID]; dup {
			continue
		}
		seen[occ.PID] = struct{}{}
		merged = append(merged, occ)
	}
	return merged
}

// SessionOnly lists occupants through a fresh tracking session. Used for the
// cheap re-scan after a single process was terminated.
func (s *Scanner) SessionOnly(letter string) []Occupant {
	sess, err := s.sessions.Open()
	if err != nil {
		s.logger.Debug("occupant session open failed",
			logging.String(logging.FieldDrive, letter), logging.Error(err))
		return nil
	}
	defer sess.Close()

	if err := sess.Register(DrivePaths(letter)...); err != nil {
		s.logger.Debug("occupant session register failed",
			logging.String(logging.FieldDrive, letter), logging.Error(err))
		return nil
	}
	list, err := sess.List()
	if err != nil {
		s.logger.Debug("occupant session list failed",
			logging.String(logging.FieldDrive, letter), logging.Error(err))
		return nil
	}
	return list
}

// Sweep lists occupants found by scanning the process table.
func (s *Scanner) Sweep(ctx context.Context, letter string) []Occupant {
	list, err := s.table.Occupants(ctx, letter)
	if err != nil {
		s.logger.Debug("process sweep failed",
			logging.String(logging.FieldDrive, letter), logging.Error(err))
		return nil
	}
	return list
}
