// Package synscan implements the wire format spoken by SynScan hand
// controllers. It is a pure codec: encoding commands to bytes and decoding
// the `#`-terminated replies, with no I/O of its own.
package synscan

import (
	"errors"
	"fmt"
	"strconv"
)

// Terminator ends every reply from the hand controller.
const Terminator = '#'

type Opcode byte

const (
	OpEcho             Opcode = 'K'
	OpGetRaDec         Opcode = 'E'
	OpGetPreciseRaDec  Opcode = 'e'
	OpGetAltAz         Opcode = 'Z'
	OpGetPreciseAltAz  Opcode = 'z'
	OpGotoRaDec        Opcode = 'R'
	OpGotoPreciseRaDec Opcode = 'r'
	OpGotoAltAz        Opcode = 'B'
	OpGotoPreciseAltAz Opcode = 'b'
	OpGetTracking      Opcode = 't'
	OpSetTracking      Opcode = 'T'
	OpSlewInProgress   Opcode = 'L'
	OpCancelSlew       Opcode = 'M'
	OpGetVersion       Opcode = 'V'
	OpGetModel         Opcode = 'm'
	OpGetAlignment     Opcode = 'J'
)

type TrackingMode byte

const (
	TrackingOff TrackingMode = iota
	TrackingAltAz
	TrackingEquatorial
	TrackingPEC
)

func (m TrackingMode) String() string {
	switch m {
	case TrackingOff:
		return "OFF"
	case TrackingAltAz:
		return "ALTAZ"
	case TrackingEquatorial:
		return "EQUATORIAL"
	case TrackingPEC:
		return "PEC"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(m))
}

func ParseTrackingMode(s string) (TrackingMode, error) {
	switch s {
	case "OFF", "Off", "off":
		return TrackingOff, nil
	case "ALTAZ", "AltAz", "altaz":
		return TrackingAltAz, nil
	case "EQUATORIAL", "Equatorial", "equatorial", "SIDEREAL", "sidereal":
		return TrackingEquatorial, nil
	case "PEC", "pec":
		return TrackingPEC, nil
	}
	return 0, fmt.Errorf("unknown tracking mode %q", s)
}

// Command is one request to the hand controller. Commands are immutable once
// constructed; build them with the constructors below.
type Command struct {
	Op      Opcode
	Payload []byte
}

func Echo(b byte) Command {
	return Command{Op: OpEcho, Payload: []byte{b}}
}

func GetPreciseRaDec() Command {
	return Command{Op: OpGetPreciseRaDec}
}

func GetPreciseAltAz() Command {
	return Command{Op: OpGetPreciseAltAz}
}

func GotoPreciseRaDec(ra, dec float64) Command {
	return Command{Op: OpGotoPreciseRaDec, Payload: []byte(FormatPrecisePair(ra, dec))}
}

func GotoPreciseAltAz(az, alt float64) Command {
	return Command{Op: OpGotoPreciseAltAz, Payload: []byte(FormatPrecisePair(az, alt))}
}

func GetTracking() Command {
	return Command{Op: OpGetTracking}
}

func SetTracking(mode TrackingMode) Command {
	return Command{Op: OpSetTracking, Payload: []byte{byte(mode)}}
}

func SlewInProgress() Command {
	return Command{Op: OpSlewInProgress}
}

func CancelSlew() Command {
	return Command{Op: OpCancelSlew}
}

func GetVersion() Command {
	return Command{Op: OpGetVersion}
}

func GetModel() Command {
	return Command{Op: OpGetModel}
}

func GetAlignment() Command {
	return Command{Op: OpGetAlignment}
}

// Encode produces the request bytes for cmd. Requests carry no terminator;
// the controller knows the payload length of each opcode.
func Encode(cmd Command) []byte {
	out := make([]byte, 0, 1+len(cmd.Payload))
	out = append(out, byte(cmd.Op))
	return append(out, cmd.Payload...)
}

// Response is the decoded reply to one Command. Only the fields relevant to
// the originating opcode are populated.
type Response struct {
	Op Opcode

	// OpGetPreciseRaDec
	RA, Dec float64
	// OpGetPreciseAltAz
	Az, Alt float64
	// OpGetTracking
	Tracking TrackingMode
	// OpSlewInProgress
	Slewing bool
	// OpGetVersion, e.g. "4.37.19"
	Version string
	// OpGetModel, e.g. "AZ-EQ6"
	Model string
	// OpGetAlignment
	Aligned bool
	// OpEcho
	Echo byte
}

// ErrTruncated reports a frame with no terminator yet; the caller should read
// more bytes or time out.
var ErrTruncated = errors.New("synscan: truncated reply")

type MalformedError struct {
	Op     Opcode
	Raw    []byte
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("synscan: malformed %q reply %q: %s", e.Op, e.Raw, e.Reason)
}

type UnsupportedError struct {
	Op Opcode
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("synscan: unsupported reply for opcode %q", e.Op)
}

func malformed(op Opcode, raw []byte, reason string) error {
	return &MalformedError{Op: op, Raw: raw, Reason: reason}
}

// Decode interprets frame as the reply to a command with opcode op. The frame
// must include the trailing terminator.
func Decode(op Opcode, frame []byte) (Response, error) {
	resp := Response{Op: op}
	if len(frame) == 0 || frame[len(frame)-1] != Terminator {
		return resp, ErrTruncated
	}
	body := frame[:len(frame)-1]
	switch op {
	case OpEcho:
		if len(body) != 1 {
			return resp, malformed(op, frame, "want one echoed byte")
		}
		resp.Echo = body[0]
	case OpGetPreciseRaDec:
		ra, dec, err := ParsePrecisePair(string(body))
		if err != nil {
			return resp, malformed(op, frame, err.Error())
		}
		resp.RA, resp.Dec = ra, dec
	case OpGetPreciseAltAz:
		az, alt, err := ParsePrecisePair(string(body))
		if err != nil {
			return resp, malformed(op, frame, err.Error())
		}
		resp.Az, resp.Alt = az, alt
	case OpGotoPreciseRaDec, OpGotoPreciseAltAz, OpSetTracking, OpCancelSlew:
		if len(body) != 0 {
			return resp, malformed(op, frame, "want empty acknowledgement")
		}
	case OpGetTracking:
		if len(body) != 1 {
			return resp, malformed(op, frame, "want one mode byte")
		}
		if body[0] > byte(TrackingPEC) {
			return resp, malformed(op, frame, "unknown tracking mode")
		}
		resp.Tracking = TrackingMode(body[0])
	case OpSlewInProgress:
		if len(body) != 1 || (body[0] != '0' && body[0] != '1') {
			return resp, malformed(op, frame, "want ASCII 0 or 1")
		}
		resp.Slewing = body[0] == '1'
	case OpGetVersion:
		if len(body) != 6 {
			return resp, malformed(op, frame, "want six hex digits")
		}
		major, err1 := strconv.ParseUint(string(body[0:2]), 16, 8)
		minor, err2 := strconv.ParseUint(string(body[2:4]), 16, 8)
		patch, err3 := strconv.ParseUint(string(body[4:6]), 16, 8)
		if err1 != nil || err2 != nil || err3 != nil {
			return resp, malformed(op, frame, "bad hex version")
		}
		resp.Version = fmt.Sprintf("%d.%d.%d", major, minor, patch)
	case OpGetModel:
		if len(body) != 1 {
			return resp, malformed(op, frame, "want one model byte")
		}
		resp.Model = modelName(body[0])
	case OpGetAlignment:
		if len(body) != 1 {
			return resp, malformed(op, frame, "want one alignment byte")
		}
		resp.Aligned = body[0] == 1
	default:
		return resp, &UnsupportedError{Op: op}
	}
	return resp, nil
}

func modelName(code byte) string {
	switch {
	case code == 0:
		return "EQ6"
	case code == 1:
		return "HEQ5"
	case code == 2:
		return "EQ5"
	case code == 3:
		return "EQ3"
	case code == 4:
		return "EQ8"
	case code == 5:
		return "AZ-EQ6"
	case code == 6:
		return "AZ-EQ5"
	case code >= 128 && code <= 143:
		return "AZ"
	case code >= 144 && code <= 159:
		return "DOB"
	}
	return "AllView"
}
