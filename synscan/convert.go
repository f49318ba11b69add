package synscan

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinates on the wire are fractions of a revolution: 16 bits for the
// coarse commands, 24 bits for the precise ones. Precise values are sent as
// eight hex digits with the low byte zero.

func RevolutionsToDegrees(rev uint16) float64 {
	return float64(rev) / 65536 * 360
}

func DegreesToRevolutions(deg float64) uint16 {
	return uint16(int32(wrapDegrees(deg) / 360 * 65536))
}

func PreciseRevolutionsToDegrees(rev uint32) float64 {
	return float64(rev&0xFFFFFF) / 16777216 * 360
}

func DegreesToPreciseRevolutions(deg float64) uint32 {
	return uint32(wrapDegrees(deg)/360*16777216) & 0xFFFFFF
}

func wrapDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// FormatPrecisePair renders two angles as a precise goto payload,
// e.g. "12AB0500,34CD0600".
func FormatPrecisePair(a, b float64) string {
	return fmt.Sprintf("%08X,%08X",
		DegreesToPreciseRevolutions(a)<<8,
		DegreesToPreciseRevolutions(b)<<8)
}

// ParsePrecisePair parses the body of a precise position reply.
func ParsePrecisePair(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want two fields, got %d", len(parts))
	}
	var out [2]float64
	for i, part := range parts {
		if len(part) != 8 {
			return 0, 0, fmt.Errorf("want eight hex digits, got %q", part)
		}
		// The low byte is padding; the high 24 bits carry the position.
		rev, err := strconv.ParseUint(part[0:6], 16, 32)
		if err != nil {
			return 0, 0, err
		}
		out[i] = PreciseRevolutionsToDegrees(uint32(rev))
	}
	return out[0], out[1], nil
}
