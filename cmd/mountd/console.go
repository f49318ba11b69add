package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
)

// ListenConsole serves a line-oriented operator console. Every command
// answers with an "RPRT n" result line, 0 meaning success.
func (s *Server) ListenConsole(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing console socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("failed to accept: %v", err)
				continue
			}
			go s.handleConsole(conn)
		}
	}()
	return nil
}

func (s *Server) handleConsole(conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		log.Printf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := 0
		switch cmd {
		case "status":
			s.statusMu.RLock()
			status := s.status.Mount
			s.statusMu.RUnlock()
			fmt.Fprintf(conn, "Mode: %s\n", status.Mode)
			if status.HasPosition {
				fmt.Fprintf(conn, "RA: %.6f\nDec: %.6f\n", status.RA, status.Dec)
			}
			fmt.Fprintf(conn, "Tracking: %s\n", status.Tracking)
			if status.LastError != "" {
				fmt.Fprintf(conn, "Error: %s\n", status.LastError)
			}
		case "slew":
			if len(args) != 2 {
				rprt = -22
				break
			}
			ra, err1 := strconv.ParseFloat(args[0], 64)
			dec, err2 := strconv.ParseFloat(args[1], 64)
			if err1 != nil || err2 != nil {
				rprt = -22
				break
			}
			rprt = result(s.dispatch(Command{Command: "slew", RA: ra, Dec: dec}))
		case "track":
			if len(args) != 1 {
				rprt = -22
				break
			}
			rprt = result(s.dispatch(Command{Command: "track", Mode: args[0]}))
		case "park", "unpark", "stop", "cancel", "reset":
			rprt = result(s.dispatch(Command{Command: cmd}))
		default:
			rprt = -11
		}
		fmt.Fprintf(conn, "RPRT %d\n", rprt)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

func result(err error) int {
	if err != nil {
		return -1
	}
	return 0
}
