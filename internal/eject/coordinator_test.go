package eject

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"unplug/internal/logging"
	"unplug/internal/occupancy"
	"unplug/internal/volume"
)

type fakeEjector struct {
	mu         sync.Mutex
	cheapErr   error
	smartErrs  []error
	smartCalls int
	cheapGate  chan struct{}
}

func (f *fakeEjector) CheapEject(string) error {
	if f.cheapGate != nil {
		<-f.cheapGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cheapErr
}

func (f *fakeEjector) SmartEject(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.smartCalls
	f.smartCalls++
	if idx < len(f.smartErrs) {
		return f.smartErrs[idx]
	}
	return nil
}

type fakeScanner struct {
	scan        []occupancy.Occupant
	sessionOnly []occupancy.Occupant
	sweep       []occupancy.Occupant
}

func (f *fakeScanner) Scan(context.Context, string) []occupancy.Occupant  { return f.scan }
func (f *fakeScanner) SessionOnly(string) []occupancy.Occupant            { return f.sessionOnly }
func (f *fakeScanner) Sweep(context.Context, string) []occupancy.Occupant { return f.sweep }

type fakeTerminator struct {
	mu   sync.Mutex
	got  [][]int32
	keep []int32
}

func (f *fakeTerminator) Terminate(_ context.Context, pids []int32) []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, append([]int32(nil), pids...))
	return f.keep
}

func (f *fakeTerminator) calls() [][]int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type fakeDismounter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeDismounter) Dismount(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRefresher) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

type coordinatorFixture struct {
	coordinator *Coordinator
	ejector     *fakeEjector
	scanner     *fakeScanner
	terminator  *fakeTerminator
	dismounter  *fakeDismounter
	sampler     *fakeRefresher
}

func newFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	fx := &coordinatorFixture{
		ejector:    &fakeEjector{},
		scanner:    &fakeScanner{},
		terminator: &fakeTerminator{},
		dismounter: &fakeDismounter{},
		sampler:    &fakeRefresher{},
	}
	fx.coordinator = NewCoordinator(Deps{
		Protocol:   fx.ejector,
		Scanner:    fx.scanner,
		Sessions:   &fakeSessions{},
		Terminator: fx.terminator,
		Dismounter: fx.dismounter,
		Sampler:    fx.sampler,
		Logger:     logging.NewNop(),
	}, Options{DisplayWindow: 40 * time.Millisecond})
	fx.coordinator.sleep = func(time.Duration) {}
	if err := fx.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(fx.coordinator.Stop)
	return fx
}

type fakeSessions struct {
	openErr error
	session *fakeSession
}

func (f *fakeSessions) Open() (occupancy.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.session == nil {
		return &fakeSession{}, nil
	}
	return f.session, nil
}

type fakeSession struct {
	released []bool
	closed   int
}

func (f *fakeSession) Register(...string) error            { return nil }
func (f *fakeSession) List() ([]occupancy.Occupant, error) { return nil, nil }
func (f *fakeSession) ForceRelease(force bool) error {
	f.released = append(f.released, force)
	return nil
}
func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

// collect drains events until a terminal state (Done or Occupied) arrives.
func collect(t *testing.T, c *Coordinator) []State {
	t.Helper()
	var states []State
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-c.Events():
			states = append(states, s)
			if s.Kind == StateDone || s.Kind == StateOccupied {
				return states
			}
		case <-deadline:
			t.Fatalf("no terminal state, saw %v", kinds(states))
		}
	}
}

func kinds(states []State) []StateKind {
	out := make([]StateKind, 0, len(states))
	for _, s := range states {
		out = append(out, s.Kind)
	}
	return out
}

func assertKinds(t *testing.T, states []State, want ...StateKind) {
	t.Helper()
	got := kinds(states)
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestScanUnoccupiedDriveSucceeds(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.coordinator.Scan("i:"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateDone)

	done := states[len(states)-1]
	if !done.OK || done.Drive != "I" || !strings.Contains(done.Message, "I:") {
		t.Fatalf("unexpected done state %+v", done)
	}
	if fx.sampler.calls == 0 {
		t.Fatal("sampler not refreshed after eject")
	}
}

func TestScanOccupiedDriveReportsOccupants(t *testing.T) {
	fx := newFixture(t)
	fx.ejector.cheapErr = &volume.VetoError{Code: 2}
	fx.scanner.scan = []occupancy.Occupant{{PID: 4321, Name: "notepad.exe"}}

	if _, err := fx.coordinator.Scan("I"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateOccupied)

	occupied := states[len(states)-1]
	if occupied.Drive != "I" || len(occupied.Occupants) != 1 || occupied.Occupants[0].PID != 4321 {
		t.Fatalf("unexpected occupied state %+v", occupied)
	}
}

func TestScanFailureWithoutOccupants(t *testing.T) {
	fx := newFixture(t)
	fx.ejector.cheapErr = errors.New("device error")

	if _, err := fx.coordinator.Scan("E"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateDone)
	if states[1].OK {
		t.Fatal("failed scan must not report success")
	}

	// The result degrades to an empty occupied state so force actions stay
	// available.
	waitForKind(t, fx.coordinator, StateOccupied)
}

func TestKillOneClearsAndEjects(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.coordinator.KillOne("I", 4321); err != nil {
		t.Fatalf("KillOne: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateEjecting, StateDone)
	if !states[len(states)-1].OK {
		t.Fatal("expected success")
	}

	calls := fx.terminator.calls()
	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != 4321 {
		t.Fatalf("terminator calls = %v", calls)
	}
}

func TestKillOneStillOccupied(t *testing.T) {
	fx := newFixture(t)
	fx.scanner.sessionOnly = []occupancy.Occupant{{PID: 99, Name: "other.exe"}}

	if _, err := fx.coordinator.KillOne("I", 4321); err != nil {
		t.Fatalf("KillOne: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateOccupied)
	if fx.ejector.smartCalls != 0 {
		t.Fatal("eject must not run while the drive is occupied")
	}
}

func TestForceEjectVetoReportsRebootRequired(t *testing.T) {
	fx := newFixture(t)
	veto := &volume.VetoError{Code: 6}
	fx.ejector.smartErrs = []error{veto, veto}

	if _, err := fx.coordinator.ForceEject("I", []int32{4321}); err != nil {
		t.Fatalf("ForceEject: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateDone)

	done := states[len(states)-1]
	if done.OK || !strings.Contains(done.Message, "reboot") {
		t.Fatalf("veto not translated: %+v", done)
	}
	if fx.dismounter.calls != 1 {
		t.Fatalf("dismount fallback ran %d times, want 1", fx.dismounter.calls)
	}
	if fx.ejector.smartCalls != 2 {
		t.Fatalf("smart eject ran %d times, want 2", fx.ejector.smartCalls)
	}
}

func TestForceEjectTerminatesSweptPidsWithEmptyExplicitSet(t *testing.T) {
	fx := newFixture(t)
	fx.scanner.sweep = []occupancy.Occupant{{PID: 10}, {PID: 20}}

	if _, err := fx.coordinator.ForceEject("I", nil); err != nil {
		t.Fatalf("ForceEject: %v", err)
	}
	collect(t, fx.coordinator)

	calls := fx.terminator.calls()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("terminator calls = %v, want one call with both swept pids", calls)
	}
}

func TestForceEjectUnionsExplicitAndSweptPids(t *testing.T) {
	fx := newFixture(t)
	fx.scanner.sweep = []occupancy.Occupant{{PID: 20}, {PID: 30}}

	if _, err := fx.coordinator.ForceEject("I", []int32{20, 40}); err != nil {
		t.Fatalf("ForceEject: %v", err)
	}
	collect(t, fx.coordinator)

	calls := fx.terminator.calls()
	if len(calls) != 1 {
		t.Fatalf("terminator calls = %v", calls)
	}
	want := map[int32]bool{20: true, 30: true, 40: true}
	if len(calls[0]) != len(want) {
		t.Fatalf("pids = %v, want union of explicit and swept", calls[0])
	}
	for _, pid := range calls[0] {
		if !want[pid] {
			t.Fatalf("unexpected pid %d in %v", pid, calls[0])
		}
	}
}

func TestManualDismountFailureStops(t *testing.T) {
	fx := newFixture(t)
	fx.dismounter.err = errors.New("access denied")

	if _, err := fx.coordinator.ManualDismount("I"); err != nil {
		t.Fatalf("ManualDismount: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateDone)
	if states[1].OK {
		t.Fatal("expected failure")
	}
	if fx.ejector.smartCalls != 0 {
		t.Fatal("eject must not run after a failed dismount")
	}
}

func TestManualDismountThenEject(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.coordinator.ManualDismount("I"); err != nil {
		t.Fatalf("ManualDismount: %v", err)
	}
	states := collect(t, fx.coordinator)
	assertKinds(t, states, StateScanning, StateEjecting, StateDone)
	if !states[len(states)-1].OK {
		t.Fatal("expected success")
	}
}

func TestDuplicateRequestForBusyDriveRejected(t *testing.T) {
	fx := newFixture(t)
	gate := make(chan struct{})
	fx.ejector.cheapGate = gate

	if _, err := fx.coordinator.Scan("E"); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	// Wait until the worker picked the request up.
	waitForKind(t, fx.coordinator, StateScanning)

	if _, err := fx.coordinator.Scan(`e:\`); !errors.Is(err, ErrDriveBusy) {
		t.Fatalf("second Scan err = %v, want ErrDriveBusy", err)
	}
	// A different drive is not blocked by E's request.
	if _, err := fx.coordinator.Scan("F"); err != nil {
		t.Fatalf("Scan other drive: %v", err)
	}

	close(gate)
	collect(t, fx.coordinator)
}

func TestDoneDegradesToIdle(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.coordinator.Scan("I"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	collect(t, fx.coordinator)
	waitForKind(t, fx.coordinator, StateIdle)
}

func waitForKind(t *testing.T, c *Coordinator, want StateKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State().Kind == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never became %v, stuck at %v", want, c.State().Kind)
}
