package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/openastro/mount_interface/mount"
	"github.com/openastro/mount_interface/power"
	"github.com/openastro/mount_interface/synscan"
)

type Server struct {
	mu  sync.Mutex
	m   *mount.Mount
	pdu *power.PDU

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     CombinedStatus
}

// CombinedStatus is the outward status shape: the mount snapshot plus the
// power distribution unit, when one is configured.
type CombinedStatus struct {
	Mount mount.Status
	Power *power.Status `json:",omitempty"`
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

func (s *Server) statusCallback(status mount.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Mount = status
	s.statusCond.Broadcast()
}

func (s *Server) powerCallback(status power.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Power = &status
	s.statusCond.Broadcast()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

// Command is one request over the websocket or a POST body.
type Command struct {
	Command string  `json:"command"`
	RA      float64 `json:"ra"`
	Dec     float64 `json:"dec"`
	Mode    string  `json:"mode"`
	Enabled bool    `json:"enabled"`
}

func (s *Server) dispatch(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "slew":
		return s.m.SlewTo(msg.RA, msg.Dec)
	case "park":
		return s.m.Park()
	case "unpark":
		return s.m.Unpark()
	case "track":
		mode, err := synscan.ParseTrackingMode(msg.Mode)
		if err != nil {
			return err
		}
		return s.m.SetTrackingMode(mode)
	case "stop":
		return s.m.StopTracking()
	case "cancel":
		return s.m.CancelSlew()
	case "reset":
		return s.m.Reset()
	case "drive_power":
		if s.pdu == nil {
			return errors.New("no power distribution unit configured")
		}
		return s.pdu.SetDrivePower(msg.Enabled)
	}
	return errors.New("unknown command " + msg.Command)
}

func (s *Server) writeResult(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err == nil {
		w.Write([]byte(`{"ok":true}`))
		return
	}
	var illegal *mount.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, mount.ErrExhausted), errors.Is(err, mount.ErrDisconnected):
		w.WriteHeader(http.StatusBadGateway)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Write(data)
}

// CommandHandler handles a POST whose URL names the command and whose body
// carries the arguments.
func (s *Server) CommandHandler(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg Command
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				s.writeResult(w, err)
				return
			}
		}
		msg.Command = command
		s.writeResult(w, s.dispatch(msg))
	}
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			if err := s.dispatch(msg); err != nil {
				log.Printf("%v command %q: %v", r.RemoteAddr, msg.Command, err)
			}
		}
	}()
	// Wake the send loop when the client goes away.
	go func() {
		<-ctx.Done()
		s.statusCond.Broadcast()
	}()

	send := func(status CombinedStatus) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
		return true
	}

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if !send(status) {
		return
	}

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	for {
		s.statusCond.Wait()
		status := s.status
		if ctx.Err() != nil {
			return
		}
		s.statusMu.RUnlock()
		ok := send(status)
		s.statusMu.RLock()
		if !ok {
			return
		}
	}
}
