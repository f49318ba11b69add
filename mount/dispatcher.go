package mount

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openastro/mount_interface/synscan"
)

// ErrExhausted means the retry budget for a command was spent without a
// valid reply.
var ErrExhausted = errors.New("mount: retries exhausted")

// Dispatcher serializes commands onto the transport: the serial line has no
// multiplexing, so exactly one command is on the wire at a time. Callers
// queue on the mutex in arrival order.
type Dispatcher struct {
	t       *Transport
	timeout time.Duration
	retries int

	mu sync.Mutex
}

// NewDispatcher wraps t with a per-command read deadline and retry bound.
// Timeouts and malformed replies are retried; serial links recover quickly
// or not at all, so there is no backoff beyond the deadline itself.
func NewDispatcher(t *Transport, timeout time.Duration, retries int) *Dispatcher {
	return &Dispatcher{t: t, timeout: timeout, retries: retries}
}

// Exchange writes cmd and reads its reply, retrying per the policy above.
// It is safe for concurrent use.
func (d *Dispatcher) Exchange(cmd synscan.Command) (synscan.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var last error
	for attempt := 0; attempt <= d.retries; attempt++ {
		resp, err := d.exchangeOnce(cmd)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrDisconnected) {
			// Resending cannot help until the port is reopened.
			return synscan.Response{}, err
		}
		var unsupported *synscan.UnsupportedError
		if errors.As(err, &unsupported) {
			return synscan.Response{}, err
		}
		last = err
	}
	return synscan.Response{}, fmt.Errorf("%q after %d attempts: %v: %w", cmd.Op, d.retries+1, last, ErrExhausted)
}

func (d *Dispatcher) exchangeOnce(cmd synscan.Command) (synscan.Response, error) {
	deadline := time.Now().Add(d.timeout)
	if err := d.t.Write(synscan.Encode(cmd)); err != nil {
		return synscan.Response{}, err
	}
	raw, err := d.t.ReadUntil(synscan.Terminator, deadline)
	if err != nil {
		return synscan.Response{}, err
	}
	return synscan.Decode(cmd.Op, raw)
}

// Reconnect reopens the transport after a disconnect.
func (d *Dispatcher) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t.Reconnect()
}
