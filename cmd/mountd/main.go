package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/openastro/mount_interface/mount"
	"github.com/openastro/mount_interface/power"
)

var (
	serialPort    = flag.String("serial", "", "serial port name, or tcp:host:port for a simulator")
	baud          = flag.Int("baud", 9600, "serial baud rate")
	readTimeout   = flag.Duration("read_timeout", time.Second, "per-command reply deadline")
	retries       = flag.Int("retries", 2, "per-command retry bound")
	pollInterval  = flag.Duration("poll_interval", time.Second, "status poll interval")
	parkAz        = flag.Float64("park_az", 0, "park azimuth in degrees")
	parkAlt       = flag.Float64("park_alt", 0, "park altitude in degrees")
	latitude      = flag.Float64("latitude", 0, "observer latitude in degrees")
	longitude     = flag.Float64("longitude", 0, "observer longitude in degrees, east positive")
	listenAddr    = flag.String("listen", "127.0.0.1:8502", "HTTP listen address")
	consoleAddr   = flag.String("console_listen", "", "operator console listen address (optional)")
	pduPort       = flag.String("pdu_serial", "", "power distribution unit serial port (optional)")
	pduBaud       = flag.Int("pdu_baud", 19200, "power distribution unit baud rate")
	pduSlave      = flag.Int("pdu_slave", 1, "power distribution unit modbus slave id")
)

func main() {
	flag.Parse()
	if *serialPort == "" {
		log.Fatal("-serial is required")
	}
	ctx := context.Background()

	s := NewServer()
	m, err := mount.Connect(ctx, mount.Config{
		Address:      *serialPort,
		Baud:         *baud,
		ReadTimeout:  *readTimeout,
		Retries:      *retries,
		PollInterval: *pollInterval,
		ParkAz:       *parkAz,
		ParkAlt:      *parkAlt,
		Observer:     &mount.Observer{Latitude: *latitude, Longitude: *longitude},
	}, s.statusCallback)
	if err != nil {
		log.Fatalf("connecting to mount: %v", err)
	}
	s.m = m

	if *pduPort != "" {
		pdu, err := power.Connect(ctx, *pduPort, *pduBaud, byte(*pduSlave), s.powerCallback)
		if err != nil {
			log.Fatalf("connecting to PDU: %v", err)
		}
		s.pdu = pdu
	}

	if *consoleAddr != "" {
		if err := s.ListenConsole(ctx, *consoleAddr); err != nil {
			log.Fatalf("console listener: %v", err)
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/api/slew", s.CommandHandler("slew")).Methods("POST")
	r.HandleFunc("/api/park", s.CommandHandler("park")).Methods("POST")
	r.HandleFunc("/api/unpark", s.CommandHandler("unpark")).Methods("POST")
	r.HandleFunc("/api/tracking", s.CommandHandler("track")).Methods("POST")
	r.HandleFunc("/api/stop", s.CommandHandler("stop")).Methods("POST")
	r.HandleFunc("/api/cancel", s.CommandHandler("cancel")).Methods("POST")
	r.HandleFunc("/api/reset", s.CommandHandler("reset")).Methods("POST")
	r.HandleFunc("/api/power", s.CommandHandler("drive_power")).Methods("POST")
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	srv := &http.Server{
		Handler:      r,
		Addr:         *listenAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Printf("listening on %s", *listenAddr)
	log.Fatal(srv.ListenAndServe())
}
