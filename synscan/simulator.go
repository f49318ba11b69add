package synscan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Simulator speaks the hand-controller side of the protocol over an arbitrary
// connection. It integrates slews in discrete time steps so goto completion
// is observable through the SlewInProgress command.
type Simulator struct {
	conn io.ReadWriteCloser

	// SlewRate is the simulated slew speed in degrees/second per axis.
	SlewRate float64

	mu       sync.Mutex
	ra, dec  float64
	az, alt  float64
	targetRA, targetDec float64
	targetAz, targetAlt float64
	slewing  bool
	tracking TrackingMode
	aligned  bool
	version  []byte
	model    byte
}

// NewSimulator returns a simulator and the peer end of an in-memory
// connection, for tests.
func NewSimulator() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return NewSimulatorConn(a), b
}

// NewSimulatorConn runs the simulator over an existing connection.
func NewSimulatorConn(conn io.ReadWriteCloser) *Simulator {
	return &Simulator{
		conn:     conn,
		SlewRate: 8,
		aligned:  true,
		version:  []byte("042513"),
		model:    5, // AZ-EQ6
	}
}

// payloadLen is the fixed request payload length of each opcode.
func payloadLen(op Opcode) (int, bool) {
	switch op {
	case OpEcho, OpSetTracking:
		return 1, true
	case OpGotoRaDec, OpGotoAltAz:
		return 9, true
	case OpGotoPreciseRaDec, OpGotoPreciseAltAz:
		return 17, true
	case OpGetRaDec, OpGetPreciseRaDec, OpGetAltAz, OpGetPreciseAltAz,
		OpGetTracking, OpSlewInProgress, OpCancelSlew,
		OpGetVersion, OpGetModel, OpGetAlignment:
		return 0, true
	}
	return 0, false
}

const stepSize = 25 * time.Millisecond

func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		t := time.NewTicker(stepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step(stepSize)
		}
	})
	g.Go(func() error {
		r := bufio.NewReader(s.conn)
		for {
			op, err := r.ReadByte()
			if err != nil {
				return err
			}
			n, ok := payloadLen(Opcode(op))
			if !ok {
				log.Printf("simulator: unknown opcode %q", op)
				continue
			}
			payload := make([]byte, n)
			if _, err := io.ReadFull(r, payload); err != nil {
				return err
			}
			if err := s.handle(Opcode(op), payload); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}

func (s *Simulator) step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.slewing {
		return
	}
	max := s.SlewRate * dt.Seconds()
	s.ra = approach(s.ra, s.targetRA, max)
	s.dec = approach(s.dec, s.targetDec, max)
	s.az = approach(s.az, s.targetAz, max)
	s.alt = approach(s.alt, s.targetAlt, max)
	if s.ra == s.targetRA && s.dec == s.targetDec &&
		s.az == s.targetAz && s.alt == s.targetAlt {
		s.slewing = false
	}
}

func approach(cur, target, max float64) float64 {
	d := target - cur
	if math.Abs(d) <= max {
		return target
	}
	if d < 0 {
		return cur - max
	}
	return cur + max
}

func (s *Simulator) handle(op Opcode, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch op {
	case OpEcho:
		return s.send("%c", payload[0])
	case OpGetPreciseRaDec:
		return s.send("%s", FormatPrecisePair(s.ra, s.dec))
	case OpGetPreciseAltAz:
		return s.send("%s", FormatPrecisePair(s.az, s.alt))
	case OpGotoPreciseRaDec:
		ra, dec, err := ParsePrecisePair(string(payload))
		if err != nil {
			log.Printf("simulator: bad goto payload %q: %v", payload, err)
			return s.send("")
		}
		s.targetRA, s.targetDec = ra, dec
		s.slewing = true
		return s.send("")
	case OpGotoPreciseAltAz:
		az, alt, err := ParsePrecisePair(string(payload))
		if err != nil {
			log.Printf("simulator: bad goto payload %q: %v", payload, err)
			return s.send("")
		}
		s.targetAz, s.targetAlt = az, alt
		s.slewing = true
		return s.send("")
	case OpGetTracking:
		return s.send("%c", byte(s.tracking))
	case OpSetTracking:
		s.tracking = TrackingMode(payload[0])
		return s.send("")
	case OpSlewInProgress:
		if s.slewing {
			return s.send("1")
		}
		return s.send("0")
	case OpCancelSlew:
		s.slewing = false
		return s.send("")
	case OpGetVersion:
		return s.send("%s", s.version)
	case OpGetModel:
		return s.send("%c", s.model)
	case OpGetAlignment:
		b := byte(0)
		if s.aligned {
			b = 1
		}
		return s.send("%c", b)
	}
	log.Printf("simulator: unhandled opcode %q", op)
	return nil
}

func (s *Simulator) send(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(s.conn, format+"#", args...)
	return err
}

// SetTracking seeds the simulated tracking mode.
func (s *Simulator) SetTracking(mode TrackingMode) {
	s.mu.Lock()
	s.tracking = mode
	s.mu.Unlock()
}

// Position reports the simulated RA/Dec, for test assertions.
func (s *Simulator) Position() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ra, s.dec
}
