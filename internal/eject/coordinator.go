package eject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"unplug/internal/logging"
	"unplug/internal/occupancy"
	"unplug/internal/volume"
)

// Scanner is the occupant discovery surface the coordinator consumes.
type Scanner interface {
	Scan(ctx context.Context, drive string) []occupancy.Occupant
	SessionOnly(drive string) []occupancy.Occupant
	Sweep(ctx context.Context, drive string) []occupancy.Occupant
}

// Terminator ends processes and reports the survivors.
type Terminator interface {
	Terminate(ctx context.Context, pids []int32) []int32
}

// Ejector runs the removal protocol.
type Ejector interface {
	SmartEject(drive string) error
	CheapEject(drive string) error
}

// Refresher forces the volume sampler to take a fresh snapshot.
type Refresher interface {
	Refresh()
}

// Deps are the collaborators a Coordinator sequences.
type Deps struct {
	Protocol   Ejector
	Scanner    Scanner
	Sessions   occupancy.Sessions
	Terminator Terminator
	Dismounter volume.Dismounter
	Sampler    Refresher
	Logger     *slog.Logger
}

// Options tunes queue sizes and pacing. Zero values use defaults.
type Options struct {
	QueueSize     int
	EventBuffer   int
	DisplayWindow time.Duration
	Settle        time.Duration
}

func (o *Options) normalize() {
	if o.QueueSize <= 0 {
		o.QueueSize = 8
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 16
	}
	if o.DisplayWindow <= 0 {
		o.DisplayWindow = 3 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
}

// Coordinator owns the eject state machine. A single worker goroutine drains
// the command queue one request at a time to a terminal state, so at most
// one eject sequence runs system-wide. Observers poll State or drain Events;
// a slow consumer loses intermediate states but never stalls the worker.
type Coordinator struct {
	deps  Deps
	opts  Options
	log   *slog.Logger
	sleep func(time.Duration)

	commands chan Request
	events   chan State

	mu    sync.Mutex
	state State
	busy  map[string]struct{}

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	opts.normalize()
	return &Coordinator{
		deps:     deps,
		opts:     opts,
		log:      logging.NewComponentLogger(deps.Logger, "eject-coordinator"),
		sleep:    time.Sleep,
		commands: make(chan Request, opts.QueueSize),
		events:   make(chan State, opts.EventBuffer),
		state:    idleState(),
		busy:     make(map[string]struct{}),
	}
}

func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("coordinator already started")
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Scan submits a soft eject: cheap eject first, occupant discovery on
// failure.
func (c *Coordinator) Scan(drive string) (uuid.UUID, error) {
	return c.submit(drive, ModeSoft, nil)
}

// ForceEject submits a disruptive eject that terminates the explicit pids
// plus every freshly discovered occupant.
func (c *Coordinator) ForceEject(drive string, pids []int32) (uuid.UUID, error) {
	return c.submit(drive, ModeForce, pids)
}

// ManualDismount submits a dismount-utility run followed by a full eject.
func (c *Coordinator) ManualDismount(drive string) (uuid.UUID, error) {
	return c.submit(drive, ModeDismount, nil)
}

// KillOne submits the termination of a single occupant followed by an eject
// if the drive cleared.
func (c *Coordinator) KillOne(drive string, pid int32) (uuid.UUID, error) {
	return c.submit(drive, ModeKillOne, []int32{pid})
}

func (c *Coordinator) submit(drive string, mode Mode, pids []int32) (uuid.UUID, error) {
	letter, err := volume.NormalizeLetter(drive)
	if err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	if _, taken := c.busy[letter]; taken {
		c.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDriveBusy, letter)
	}
	c.busy[letter] = struct{}{}
	c.mu.Unlock()

	req := Request{ID: uuid.New(), Drive: letter, Mode: mode, PIDs: pids}
	select {
	case c.commands <- req:
		return req.ID, nil
	default:
		c.release(letter)
		return uuid.Nil, fmt.Errorf("command queue full, drive %s not scheduled", letter)
	}
}

func (c *Coordinator) release(letter string) {
	c.mu.Lock()
	delete(c.busy, letter)
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events exposes the state stream. Intermediate states may be dropped when
// the consumer lags.
func (c *Coordinator) Events() <-chan State {
	return c.events
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	var fade *time.Timer
	var fadeC <-chan time.Time
	var afterDone State

	for {
		select {
		case <-ctx.Done():
			if fade != nil {
				fade.Stop()
			}
			return
		case <-fadeC:
			fadeC = nil
			c.setState(afterDone)
		case req := <-c.commands:
			if fade != nil {
				fade.Stop()
				fadeC = nil
			}
			afterDone = c.handle(ctx, req)
			c.release(req.Drive)
			if c.State().Kind == StateDone {
				fade = time.NewTimer(c.opts.DisplayWindow)
				fadeC = fade.C
			}
		}
	}
}

// handle drives one request to a terminal state and returns the state the
// display window degrades to once a Done result has been shown.
func (c *Coordinator) handle(ctx context.Context, req Request) State {
	log := c.log.With(
		logging.String(logging.FieldRequestID, req.ID.String()),
		logging.String(logging.FieldDrive, req.Drive))
	log.Info("request started", logging.String("mode", string(req.Mode)))

	switch req.Mode {
	case ModeSoft:
		return c.handleScan(ctx, log, req)
	case ModeKillOne:
		return c.handleKillOne(ctx, log, req)
	case ModeForce:
		return c.handleForce(ctx, log, req)
	case ModeDismount:
		return c.handleDismount(ctx, log, req)
	default:
		c.setState(doneState(req.Drive, FailureMessage(req.Drive, fmt.Errorf("unknown mode %q", req.Mode)), false))
		return idleState()
	}
}

func (c *Coordinator) handleScan(ctx context.Context, log *slog.Logger, req Request) State {
	c.setState(scanningState(req.Drive, "Checking drive "+volume.Prefix(req.Drive)))

	err := c.deps.Protocol.CheapEject(req.Drive)
	if err == nil {
		c.finish(log, req.Drive, SuccessMessage(req.Drive), true)
		return idleState()
	}
	log.Debug("cheap eject failed, scanning for occupants", logging.Error(err))

	occupants := c.deps.Scanner.Scan(ctx, req.Drive)
	if len(occupants) > 0 {
		log.Info("drive occupied", logging.Int("occupants", len(occupants)))
		c.setState(occupiedState(req.Drive, occupants))
		return idleState()
	}

	c.finish(log, req.Drive, FailureMessage(req.Drive, err), false)
	// No occupant explains the failure, so degrade to an empty occupied
	// state; the presentation layer offers force actions from there.
	return occupiedState(req.Drive, nil)
}

func (c *Coordinator) handleKillOne(ctx context.Context, log *slog.Logger, req Request) State {
	c.setState(scanningState(req.Drive, "Stopping occupant of drive "+volume.Prefix(req.Drive)))

	if remaining := c.deps.Terminator.Terminate(ctx, req.PIDs); len(remaining) > 0 {
		log.Warn("occupant survived termination", logging.Any("pids", remaining))
	}
	c.sleep(c.opts.Settle)

	if occupants := c.deps.Scanner.SessionOnly(req.Drive); len(occupants) > 0 {
		c.setState(occupiedState(req.Drive, occupants))
		return idleState()
	}

	c.setState(ejectingState(req.Drive))
	err := c.deps.Protocol.SmartEject(req.Drive)
	if err != nil {
		c.finish(log, req.Drive, FailureMessage(req.Drive, err), false)
		return occupiedState(req.Drive, nil)
	}
	c.finish(log, req.Drive, SuccessMessage(req.Drive), true)
	return idleState()
}

func (c *Coordinator) handleForce(ctx context.Context, log *slog.Logger, req Request) State {
	c.setState(scanningState(req.Drive, "Releasing drive "+volume.Prefix(req.Drive)))

	c.forceRelease(log, req.Drive)

	pids := unionPIDs(req.PIDs, c.deps.Scanner.Sweep(ctx, req.Drive))
	if len(pids) > 0 {
		log.Info("terminating occupants", logging.Int("count", len(pids)))
		if remaining := c.deps.Terminator.Terminate(ctx, pids); len(remaining) > 0 {
			log.Warn("occupants survived termination", logging.Any("pids", remaining))
		}
	}
	c.sleep(c.opts.Settle)

	err := c.deps.Protocol.SmartEject(req.Drive)
	if err != nil {
		log.Info("eject failed, trying dismount utility", logging.Error(err))
		if derr := c.deps.Dismounter.Dismount(ctx, req.Drive); derr != nil {
			log.Warn("dismount utility failed", logging.Error(derr))
		}
		err = c.deps.Protocol.SmartEject(req.Drive)
	}
	if err != nil {
		c.finish(log, req.Drive, FailureMessage(req.Drive, err), false)
		return occupiedState(req.Drive, nil)
	}
	c.finish(log, req.Drive, SuccessMessage(req.Drive), true)
	return idleState()
}

func (c *Coordinator) handleDismount(ctx context.Context, log *slog.Logger, req Request) State {
	c.setState(scanningState(req.Drive, "Dismounting drive "+volume.Prefix(req.Drive)))

	if err := c.deps.Dismounter.Dismount(ctx, req.Drive); err != nil {
		c.finish(log, req.Drive, FailureMessage(req.Drive, err), false)
		return idleState()
	}

	c.setState(ejectingState(req.Drive))
	err := c.deps.Protocol.SmartEject(req.Drive)
	if err != nil {
		c.finish(log, req.Drive, FailureMessage(req.Drive, err), false)
		// Dismount succeeded but the hardware refused; show whoever is
		// still holding the drive.
		return occupiedState(req.Drive, c.deps.Scanner.SessionOnly(req.Drive))
	}
	c.finish(log, req.Drive, SuccessMessage(req.Drive), true)
	return idleState()
}

// forceRelease asks the occupant-tracking facility to shut down every holder
// of the drive. Best-effort; failures degrade to the process sweep.
func (c *Coordinator) forceRelease(log *slog.Logger, drive string) {
	sess, err := c.deps.Sessions.Open()
	if err != nil {
		log.Debug("force release skipped", logging.Error(err))
		return
	}
	defer sess.Close()
	if err := sess.Register(occupancy.DrivePaths(drive)...); err != nil {
		log.Debug("force release register failed", logging.Error(err))
		return
	}
	if err := sess.ForceRelease(true); err != nil {
		log.Debug("force release failed", logging.Error(err))
	}
}

func (c *Coordinator) finish(log *slog.Logger, drive, message string, ok bool) {
	c.deps.Sampler.Refresh()
	if ok {
		log.Info("request finished", logging.Bool("ok", true))
	} else {
		log.Warn("request finished", logging.Bool("ok", false), logging.String("result", message))
	}
	c.setState(doneState(drive, message, ok))
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emit(s)
}

// emit never blocks; when the buffer is full the oldest event is dropped to
// make room so consumers converge on the newest state.
func (c *Coordinator) emit(s State) {
	select {
	case c.events <- s:
		return
	default:
	}
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- s:
	default:
	}
}

func unionPIDs(explicit []int32, swept []occupancy.Occupant) []int32 {
	seen := make(map[int32]struct{}, len(explicit)+len(swept))
	out := make([]int32, 0, len(explicit)+len(swept))
	for _, pid := range explicit {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
	}
	for _, occ := range swept {
		if _, dup := seen[occ.PID]; dup {
			continue
		}
		seen[occ.PID] = struct{}{}
		out = append(out, occ.PID)
	}
	return out
}
