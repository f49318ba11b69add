package mount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openastro/mount_interface/synscan"
)

type Mode string

const (
	ModeParked   Mode = "PARKED"
	ModeIdle     Mode = "IDLE"
	ModeSlewing  Mode = "SLEWING"
	ModeTracking Mode = "TRACKING"
	ModeError    Mode = "ERROR"
)

// IllegalTransitionError rejects a request that is not legal in the current
// mode. No bytes are written to the device.
type IllegalTransitionError struct {
	From    Mode
	Request string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("mount: cannot %s while %s", e.Request, e.From)
}

// Status is a snapshot of the mount state. Position fields are unset until
// the first successful status read.
type Status struct {
	Mode Mode
	// RA and Dec are in decimal degrees.
	HasPosition bool
	RA, Dec     float64
	// Az and Alt are the horizontal projection of RA/Dec for the
	// configured observer, if any.
	Az, Alt  float64
	Tracking string
	Aligned  bool
	Version  string
	Model    string

	LastUpdated time.Time
	LastError   string
}

// equalIgnoringTime compares snapshots without the poll timestamp, so a poll
// that learned nothing new does not fan out a duplicate.
func (s Status) equalIgnoringTime(o Status) bool {
	s.LastUpdated = time.Time{}
	o.LastUpdated = time.Time{}
	return s == o
}

type StatusCallback func(status Status)

type Config struct {
	// Address is a serial port path or "tcp:host:port".
	Address     string
	Baud        int
	ReadTimeout time.Duration
	// Retries is the per-command retry bound after the first attempt.
	Retries      int
	PollInterval time.Duration

	// ParkAz and ParkAlt are the horizontal park position.
	ParkAz, ParkAlt float64

	// Observer enables the horizontal projection in snapshots.
	Observer *Observer
}

// Mount is the authoritative model of the device state. All mutation funnels
// through it; readers get value snapshots via the status callback or
// GetStatus.
type Mount struct {
	d   *Dispatcher
	cfg Config

	statusCallback StatusCallback

	mu          sync.Mutex
	status      Status
	trackMode   synscan.TrackingMode
	parkPending bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return cfg
}

// Connect opens the configured port, probes the hand controller and starts
// the poll loop. A probe failure is fatal; the caller owns retry policy at
// startup.
func Connect(ctx context.Context, cfg Config, statusCallback StatusCallback) (*Mount, error) {
	cfg = cfg.withDefaults()
	t, err := OpenTransport(cfg.Address, cfg.Baud, cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	m := New(NewDispatcher(t, cfg.ReadTimeout, cfg.Retries), cfg, statusCallback)
	if err := m.Reset(); err != nil {
		t.Close()
		return nil, err
	}
	go m.pollLoop(ctx)
	return m, nil
}

// New builds a Mount around an existing dispatcher without probing or
// polling, for tests and custom wiring.
func New(d *Dispatcher, cfg Config, statusCallback StatusCallback) *Mount {
	return &Mount{
		d:              d,
		cfg:            cfg.withDefaults(),
		statusCallback: statusCallback,
		status:         Status{Mode: ModeIdle},
	}
}

func (m *Mount) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.PollInterval):
		}
		if m.GetStatus().Mode == ModeError {
			// Terminal until an explicit Reset re-probes the device.
			continue
		}
		if err := m.PollOnce(); err != nil {
			log.Printf("polling mount: %v", err)
		}
	}
}

func (m *Mount) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// begin validates the transition legality table before any device I/O.
func (m *Mount) begin(request string, allowed ...Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mode := range allowed {
		if m.status.Mode == mode {
			return nil
		}
	}
	return &IllegalTransitionError{From: m.status.Mode, Request: request}
}

// update mutates the status under the lock and fans the new snapshot out if
// it changed.
func (m *Mount) update(f func(s *Status)) {
	m.mu.Lock()
	old := m.status
	f(&m.status)
	status := m.status
	m.mu.Unlock()
	if !status.equalIgnoringTime(old) && m.statusCallback != nil {
		m.statusCallback(status)
	}
}

// fail records an exchange failure. Exhausted retries and disconnects drive
// the mount to ModeError so passive watchers learn of the failure.
func (m *Mount) fail(request string, err error) error {
	if errors.Is(err, ErrExhausted) || errors.Is(err, ErrDisconnected) {
		m.update(func(s *Status) {
			s.Mode = ModeError
			s.LastError = err.Error()
		})
	}
	return fmt.Errorf("%s: %w", request, err)
}

// SlewTo commands a goto to the given RA/Dec in decimal degrees.
func (m *Mount) SlewTo(ra, dec float64) error {
	if err := m.begin("slew", ModeIdle, ModeTracking); err != nil {
		return err
	}
	if _, err := m.d.Exchange(synscan.GotoPreciseRaDec(ra, dec)); err != nil {
		return m.fail("slew", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeSlewing
		m.parkPending = false
	})
	return nil
}

// Park stops tracking and slews to the configured park position. The mode
// latches to Parked once the goto completes.
func (m *Mount) Park() error {
	if err := m.begin("park", ModeIdle, ModeTracking); err != nil {
		return err
	}
	if _, err := m.d.Exchange(synscan.SetTracking(synscan.TrackingOff)); err != nil {
		return m.fail("park", err)
	}
	if _, err := m.d.Exchange(synscan.GotoPreciseAltAz(m.cfg.ParkAz, m.cfg.ParkAlt)); err != nil {
		return m.fail("park", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeSlewing
		s.Tracking = synscan.TrackingOff.String()
		m.trackMode = synscan.TrackingOff
		m.parkPending = true
	})
	return nil
}

// Unpark re-reads the device state and returns the mount to Idle.
func (m *Mount) Unpark() error {
	if err := m.begin("unpark", ModeParked); err != nil {
		return err
	}
	if err := m.refresh(); err != nil {
		return m.fail("unpark", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeIdle
	})
	return nil
}

// SetTrackingMode starts tracking at the given rate. TrackingOff is
// equivalent to StopTracking.
func (m *Mount) SetTrackingMode(mode synscan.TrackingMode) error {
	if mode == synscan.TrackingOff {
		return m.StopTracking()
	}
	if err := m.begin("start tracking", ModeIdle, ModeTracking); err != nil {
		return err
	}
	if _, err := m.d.Exchange(synscan.SetTracking(mode)); err != nil {
		return m.fail("start tracking", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeTracking
		s.Tracking = mode.String()
		m.trackMode = mode
	})
	return nil
}

func (m *Mount) StopTracking() error {
	if err := m.begin("stop tracking", ModeTracking); err != nil {
		return err
	}
	if _, err := m.d.Exchange(synscan.SetTracking(synscan.TrackingOff)); err != nil {
		return m.fail("stop tracking", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeIdle
		s.Tracking = synscan.TrackingOff.String()
		m.trackMode = synscan.TrackingOff
	})
	return nil
}

// CancelSlew aborts a goto in progress.
func (m *Mount) CancelSlew() error {
	if err := m.begin("cancel slew", ModeSlewing); err != nil {
		return err
	}
	if _, err := m.d.Exchange(synscan.CancelSlew()); err != nil {
		return m.fail("cancel slew", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeIdle
		m.parkPending = false
	})
	return nil
}

// Reset re-probes the device and re-seeds the state from fresh reads. It is
// the only way out of ModeError.
func (m *Mount) Reset() error {
	if err := m.d.Reconnect(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	echo, err := m.d.Exchange(synscan.Echo('x'))
	if err != nil {
		return m.fail("reset", err)
	}
	if echo.Echo != 'x' {
		return m.fail("reset", fmt.Errorf("echo mismatch: got %q", echo.Echo))
	}
	version, err := m.d.Exchange(synscan.GetVersion())
	if err != nil {
		return m.fail("reset", err)
	}
	model, err := m.d.Exchange(synscan.GetModel())
	if err != nil {
		return m.fail("reset", err)
	}
	aligned, err := m.d.Exchange(synscan.GetAlignment())
	if err != nil {
		return m.fail("reset", err)
	}
	m.update(func(s *Status) {
		s.Mode = ModeIdle
		s.LastError = ""
		s.Version = version.Version
		s.Model = model.Model
		s.Aligned = aligned.Aligned
		m.parkPending = false
	})
	if err := m.refresh(); err != nil {
		return m.fail("reset", err)
	}
	return nil
}

// refresh reads position and tracking mode and folds them into the snapshot.
func (m *Mount) refresh() error {
	pos, err := m.d.Exchange(synscan.GetPreciseRaDec())
	if err != nil {
		return err
	}
	tracking, err := m.d.Exchange(synscan.GetTracking())
	if err != nil {
		return err
	}
	now := time.Now()
	m.update(func(s *Status) {
		s.HasPosition = true
		s.RA, s.Dec = pos.RA, pos.Dec
		if m.cfg.Observer != nil {
			s.Az, s.Alt = m.cfg.Observer.Horizontal(pos.RA, pos.Dec, now)
		}
		s.Tracking = tracking.Tracking.String()
		s.LastUpdated = now
		m.trackMode = tracking.Tracking
	})
	return nil
}

// PollOnce performs one status poll: position, tracking mode, and while
// slewing the goto-in-progress check that drives the Slewing exit
// transition.
func (m *Mount) PollOnce() error {
	if err := m.refresh(); err != nil {
		return m.fail("status poll", err)
	}
	m.mu.Lock()
	slewing := m.status.Mode == ModeSlewing
	m.mu.Unlock()
	if !slewing {
		return nil
	}
	progress, err := m.d.Exchange(synscan.SlewInProgress())
	if err != nil {
		return m.fail("status poll", err)
	}
	if progress.Slewing {
		return nil
	}
	m.update(func(s *Status) {
		switch {
		case m.parkPending:
			s.Mode = ModeParked
			m.parkPending = false
		case m.trackMode != synscan.TrackingOff:
			s.Mode = ModeTracking
		default:
			s.Mode = ModeIdle
		}
	})
	return nil
}
