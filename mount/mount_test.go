package mount

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openastro/mount_interface/synscan"
)

func TestIllegalTransitionWritesNothing(t *testing.T) {
	conn := &scriptConn{}
	d := NewDispatcher(NewTransportConn(conn, 20*time.Millisecond), 20*time.Millisecond, 2)
	m := New(d, Config{}, nil)

	for _, test := range []struct {
		name string
		from Mode
		do   func() error
	}{
		{"slew while parked", ModeParked, func() error { return m.SlewTo(10, 45) }},
		{"park while slewing", ModeSlewing, func() error { return m.Park() }},
		{"unpark while idle", ModeIdle, func() error { return m.Unpark() }},
		{"track while parked", ModeParked, func() error { return m.SetTrackingMode(synscan.TrackingEquatorial) }},
		{"stop while idle", ModeIdle, func() error { return m.StopTracking() }},
		{"cancel while tracking", ModeTracking, func() error { return m.CancelSlew() }},
		{"slew while errored", ModeError, func() error { return m.SlewTo(10, 45) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			m.mu.Lock()
			m.status.Mode = test.from
			m.mu.Unlock()
			err := test.do()
			var illegal *IllegalTransitionError
			if !errors.As(err, &illegal) {
				t.Fatalf("got %v, want IllegalTransitionError", err)
			}
			if illegal.From != test.from {
				t.Errorf("error reports mode %s, want %s", illegal.From, test.from)
			}
			if got := conn.writeCount(); got != 0 {
				t.Errorf("%d bytes written for an illegal request", got)
			}
		})
	}
}

// simMount wires a Mount to the protocol simulator over an in-memory pipe.
func simMount(t *testing.T, cfg Config) (*Mount, *synscan.Simulator, func() []Status) {
	t.Helper()
	sim, peer := synscan.NewSimulator()
	sim.SlewRate = 1e6
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sim.Run(ctx)

	var mu sync.Mutex
	var snapshots []Status
	d := NewDispatcher(NewTransportConn(peer, 500*time.Millisecond), 500*time.Millisecond, 2)
	m := New(d, cfg, func(s Status) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return m, sim, func() []Status {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Status, len(snapshots))
		copy(out, snapshots)
		return out
	}
}

// pollUntil polls the mount until cond holds or the deadline passes.
func pollUntil(t *testing.T, m *Mount, cond func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := m.PollOnce(); err != nil {
			t.Fatalf("PollOnce: %v", err)
		}
		if s := m.GetStatus(); cond(s) {
			return s
		}
		time.Sleep(30 * time.Millisecond)
	}
	t.Fatalf("condition not reached; status %+v", m.GetStatus())
	return Status{}
}

func TestResetSeedsStatus(t *testing.T) {
	m, _, _ := simMount(t, Config{})
	status := m.GetStatus()
	if status.Mode != ModeIdle {
		t.Errorf("mode = %s, want IDLE", status.Mode)
	}
	if !status.HasPosition {
		t.Error("no position after reset")
	}
	if status.Version != "4.37.19" {
		t.Errorf("version = %q, want 4.37.19", status.Version)
	}
	if status.Model != "AZ-EQ6" {
		t.Errorf("model = %q, want AZ-EQ6", status.Model)
	}
	if !status.Aligned {
		t.Error("not aligned after reset")
	}
}

func TestSlewToTracking(t *testing.T) {
	m, sim, snapshots := simMount(t, Config{})
	sim.SetTracking(synscan.TrackingEquatorial)

	if err := m.SlewTo(150, 45); err != nil {
		t.Fatalf("SlewTo: %v", err)
	}
	if got := m.GetStatus().Mode; got != ModeSlewing {
		t.Fatalf("mode after SlewTo = %s, want SLEWING", got)
	}

	status := pollUntil(t, m, func(s Status) bool { return s.Mode == ModeTracking })
	if !status.HasPosition {
		t.Error("no position after slew")
	}
	if d := status.RA - 150; d < -1e-3 || d > 1e-3 {
		t.Errorf("RA = %v, want 150", status.RA)
	}
	if d := status.Dec - 45; d < -1e-3 || d > 1e-3 {
		t.Errorf("Dec = %v, want 45", status.Dec)
	}

	// The watcher saw Slewing before Tracking.
	var sawSlewing bool
	for _, s := range snapshots() {
		if s.Mode == ModeSlewing {
			sawSlewing = true
		}
		if s.Mode == ModeTracking {
			if !sawSlewing {
				t.Error("Tracking snapshot emitted before Slewing")
			}
			return
		}
	}
	t.Error("no Tracking snapshot emitted")
}

func TestSlewToIdleWithoutTracking(t *testing.T) {
	m, _, _ := simMount(t, Config{})
	if err := m.SlewTo(10, -20); err != nil {
		t.Fatalf("SlewTo: %v", err)
	}
	pollUntil(t, m, func(s Status) bool { return s.Mode == ModeIdle })
}

func TestParkCycle(t *testing.T) {
	m, sim, _ := simMount(t, Config{ParkAz: 180, ParkAlt: 20})
	sim.SetTracking(synscan.TrackingEquatorial)
	if err := m.SetTrackingMode(synscan.TrackingEquatorial); err != nil {
		t.Fatalf("SetTrackingMode: %v", err)
	}

	if err := m.Park(); err != nil {
		t.Fatalf("Park: %v", err)
	}
	status := pollUntil(t, m, func(s Status) bool { return s.Mode == ModeParked })
	if status.Tracking != "OFF" {
		t.Errorf("tracking = %s after park, want OFF", status.Tracking)
	}

	if err := m.Unpark(); err != nil {
		t.Fatalf("Unpark: %v", err)
	}
	if got := m.GetStatus().Mode; got != ModeIdle {
		t.Errorf("mode after Unpark = %s, want IDLE", got)
	}
}

func TestCancelSlew(t *testing.T) {
	sim, peer := synscan.NewSimulator()
	sim.SlewRate = 0.001 // slow enough that the slew cannot finish
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sim.Run(ctx)

	d := NewDispatcher(NewTransportConn(peer, 500*time.Millisecond), 500*time.Millisecond, 2)
	m := New(d, Config{}, nil)
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := m.SlewTo(150, 45); err != nil {
		t.Fatalf("SlewTo: %v", err)
	}
	if err := m.CancelSlew(); err != nil {
		t.Fatalf("CancelSlew: %v", err)
	}
	if got := m.GetStatus().Mode; got != ModeIdle {
		t.Errorf("mode after cancel = %s, want IDLE", got)
	}
}

func TestPollFailureDrivesError(t *testing.T) {
	conn := &scriptConn{}
	d := NewDispatcher(NewTransportConn(conn, 10*time.Millisecond), 10*time.Millisecond, 2)
	var snapshots []Status
	m := New(d, Config{}, func(s Status) { snapshots = append(snapshots, s) })

	if err := m.PollOnce(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("PollOnce = %v, want ErrExhausted", err)
	}
	status := m.GetStatus()
	if status.Mode != ModeError {
		t.Errorf("mode = %s, want ERROR", status.Mode)
	}
	if status.LastError == "" {
		t.Error("no LastError recorded")
	}
	if len(snapshots) == 0 || snapshots[len(snapshots)-1].Mode != ModeError {
		t.Error("error snapshot not emitted to watchers")
	}
	// Error is terminal: even a previously legal request is rejected.
	var illegal *IllegalTransitionError
	if err := m.SlewTo(10, 45); !errors.As(err, &illegal) {
		t.Errorf("SlewTo in ERROR = %v, want IllegalTransitionError", err)
	}
}
