// Package mount drives a SynScan telescope mount over a serial line: a
// byte-level transport, a dispatcher that serializes commands onto it, and a
// state machine tracking the mount's mode and position.
package mount

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

var (
	// ErrDisconnected means the connection was lost mid-operation. The
	// transport stays unusable until Reconnect.
	ErrDisconnected = errors.New("mount: transport disconnected")
	// ErrTimeout means the device sent no (complete) reply within the
	// deadline.
	ErrTimeout = errors.New("mount: read timeout")
)

// Transport owns the physical connection to the hand controller. Addresses
// of the form "tcp:host:port" are dialed over TCP (simulator, serial-over-IP
// bridges); anything else is opened as a local serial port.
type Transport struct {
	addr        string
	baud        int
	readTimeout time.Duration

	mu           sync.Mutex
	conn         io.ReadWriteCloser
	disconnected bool
}

func OpenTransport(addr string, baud int, readTimeout time.Duration) (*Transport, error) {
	t := &Transport{addr: addr, baud: baud, readTimeout: readTimeout}
	if err := t.Reconnect(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTransportConn wraps an existing connection, for tests and in-process
// simulators.
func NewTransportConn(conn io.ReadWriteCloser, readTimeout time.Duration) *Transport {
	return &Transport{conn: conn, readTimeout: readTimeout}
}

func (t *Transport) open() (io.ReadWriteCloser, error) {
	if strings.HasPrefix(t.addr, "tcp:") {
		dialer := &net.Dialer{Timeout: t.readTimeout}
		return dialer.Dial("tcp", strings.TrimPrefix(t.addr, "tcp:"))
	}
	return serial.OpenPort(&serial.Config{
		Name:        t.addr,
		Baud:        t.baud,
		ReadTimeout: t.readTimeout,
	})
}

// Reconnect re-opens the underlying connection and clears the disconnected
// latch. It fails for transports constructed around an injected connection.
func (t *Transport) Reconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.addr == "" {
		if t.disconnected {
			return fmt.Errorf("mount: cannot reopen injected connection: %w", ErrDisconnected)
		}
		return nil
	}
	if t.conn != nil {
		t.conn.Close()
	}
	conn, err := t.open()
	if err != nil {
		return fmt.Errorf("opening %q: %w", t.addr, err)
	}
	t.conn = conn
	t.disconnected = false
	return nil
}

func (t *Transport) get() (io.ReadWriteCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected || t.conn == nil {
		return nil, ErrDisconnected
	}
	return t.conn, nil
}

func (t *Transport) markDisconnected() {
	t.mu.Lock()
	t.disconnected = true
	t.mu.Unlock()
}

func (t *Transport) Write(p []byte) error {
	conn, err := t.get()
	if err != nil {
		return err
	}
	if _, err := conn.Write(p); err != nil {
		t.markDisconnected()
		return fmt.Errorf("writing %d bytes: %w", len(p), ErrDisconnected)
	}
	return nil
}

// ReadUntil accumulates bytes until term is seen or the deadline passes.
// The returned slice includes the terminator. Serial reads use the port's
// read timeout and report zero bytes when it elapses; network connections
// get a read deadline instead.
func (t *Transport) ReadUntil(term byte, deadline time.Time) ([]byte, error) {
	conn, err := t.get()
	if err != nil {
		return nil, err
	}
	if nc, ok := conn.(net.Conn); ok {
		nc.SetReadDeadline(deadline)
	}
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return out, ErrTimeout
			}
			t.markDisconnected()
			return out, fmt.Errorf("reading reply: %w", ErrDisconnected)
		}
		if n == 0 {
			if time.Now().After(deadline) {
				return out, ErrTimeout
			}
			continue
		}
		out = append(out, buf[0])
		if buf[0] == term {
			return out, nil
		}
		if time.Now().After(deadline) {
			return out, ErrTimeout
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
