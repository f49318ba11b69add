package synscan

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	for _, test := range []struct {
		name string
		cmd  Command
		want string
	}{
		{"echo", Echo('x'), "Kx"},
		{"get position", GetPreciseRaDec(), "e"},
		{"goto", GotoPreciseRaDec(26.251938, 26.251938), "r12AB0500,12AB0500"},
		{"goto wraps negative dec", GotoPreciseAltAz(180, -90), "b80000000,C0000000"},
		{"set tracking", SetTracking(TrackingEquatorial), "T\x02"},
		{"stop tracking", SetTracking(TrackingOff), "T\x00"},
		{"slew in progress", SlewInProgress(), "L"},
		{"cancel", CancelSlew(), "M"},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := string(Encode(test.cmd)); got != test.want {
				t.Errorf("Encode = %q, want %q", got, test.want)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Encode(GotoPreciseRaDec(150.5, -30.25))
	b := Encode(GotoPreciseRaDec(150.5, -30.25))
	if string(a) != string(b) {
		t.Errorf("same command encoded differently: %q vs %q", a, b)
	}
}

func TestDecode(t *testing.T) {
	for _, test := range []struct {
		name  string
		op    Opcode
		frame string
		want  Response
	}{
		{"echo", OpEcho, "x#", Response{Op: OpEcho, Echo: 'x'}},
		{"position", OpGetPreciseRaDec, "12AB0500,12AB0500#", Response{Op: OpGetPreciseRaDec, RA: 26.251929, Dec: 26.251929}},
		{"alt az", OpGetPreciseAltAz, "80000000,40000000#", Response{Op: OpGetPreciseAltAz, Az: 180, Alt: 90}},
		{"goto ack", OpGotoPreciseRaDec, "#", Response{Op: OpGotoPreciseRaDec}},
		{"tracking", OpGetTracking, "\x02#", Response{Op: OpGetTracking, Tracking: TrackingEquatorial}},
		{"slewing", OpSlewInProgress, "1#", Response{Op: OpSlewInProgress, Slewing: true}},
		{"not slewing", OpSlewInProgress, "0#", Response{Op: OpSlewInProgress}},
		{"version", OpGetVersion, "042513#", Response{Op: OpGetVersion, Version: "4.37.19"}},
		{"model", OpGetModel, "\x05#", Response{Op: OpGetModel, Model: "AZ-EQ6"}},
		{"aligned", OpGetAlignment, "\x01#", Response{Op: OpGetAlignment, Aligned: true}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Decode(test.op, []byte(test.frame))
			if err != nil {
				t.Fatalf("Decode(%q, %q): %v", test.op, test.frame, err)
			}
			if diff := cmp.Diff(got, test.want, cmp.Comparer(approxFloat)); diff != "" {
				t.Errorf("unexpected response: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func approxFloat(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-4
}

func TestDecodeErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		op    Opcode
		frame string
		want  error
	}{
		{"empty", OpGetPreciseRaDec, "", ErrTruncated},
		{"no terminator", OpGetPreciseRaDec, "12AB0500,12AB05", ErrTruncated},
		{"bad hex", OpGetPreciseRaDec, "12AB05zz,12AB0500#", &MalformedError{}},
		{"one field", OpGetPreciseRaDec, "12AB0500#", &MalformedError{}},
		{"short field", OpGetPreciseRaDec, "12AB05,12AB05#", &MalformedError{}},
		{"bad tracking mode", OpGetTracking, "\x09#", &MalformedError{}},
		{"nonempty ack", OpSetTracking, "x#", &MalformedError{}},
		{"bad progress flag", OpSlewInProgress, "2#", &MalformedError{}},
		{"unsupported", Opcode('Q'), "#", &UnsupportedError{}},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(test.op, []byte(test.frame))
			if err == nil {
				t.Fatalf("Decode(%q, %q) succeeded, want error", test.op, test.frame)
			}
			switch want := test.want.(type) {
			case *MalformedError:
				var got *MalformedError
				if !errors.As(err, &got) {
					t.Errorf("got %v, want MalformedError", err)
				}
			case *UnsupportedError:
				var got *UnsupportedError
				if !errors.As(err, &got) {
					t.Errorf("got %v, want UnsupportedError", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Errorf("got %v, want %v", err, want)
				}
			}
		})
	}
}

func TestPositionRoundTrip(t *testing.T) {
	for _, pos := range []struct{ ra, dec float64 }{
		{0, 0},
		{26.251938, 26.251938},
		{150.5, 45.25},
		{359.9, 0.1},
	} {
		frame := append([]byte(FormatPrecisePair(pos.ra, pos.dec)), Terminator)
		resp, err := Decode(OpGetPreciseRaDec, frame)
		if err != nil {
			t.Fatalf("Decode(%q): %v", frame, err)
		}
		// The wire carries 24 bits per revolution, about 2e-5 degrees.
		if !approxFloat(resp.RA, pos.ra) || !approxFloat(resp.Dec, pos.dec) {
			t.Errorf("round trip of (%v, %v) = (%v, %v)", pos.ra, pos.dec, resp.RA, resp.Dec)
		}
	}
}
