package mount

import (
	"math"
	"time"
)

// Observer projects equatorial coordinates into the horizontal frame at a
// site. Latitude and Longitude are in degrees, east positive.
type Observer struct {
	Latitude  float64
	Longitude float64
}

// equhor converts between hour-angle/declination and azimuth/altitude.
// Phi is the observer's latitude. Arguments are in radians.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor_rad(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := (sy * sphi) + (cy * cphi * cx)
	q := math.Asin(sq)

	cp := (sy - (sphi * sq)) / (cphi * math.Cos(q))
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

func equhor_deg(x, y, phi float64) (float64, float64) {
	x, y, phi = deg2rad(x), deg2rad(y), deg2rad(phi)
	p, q := equhor_rad(x, y, phi)
	return rad2deg(p), rad2deg(q)
}

// gmst returns the Greenwich mean sidereal time in degrees.
// Approximation from Meeus, accurate to well under a second of time.
func gmst(t time.Time) float64 {
	const j2000 = 2451545.0
	jd := float64(t.UTC().UnixNano())/86400e9 + 2440587.5
	d := jd - j2000
	theta := 280.46061837 + 360.98564736629*d
	theta = math.Mod(theta, 360)
	if theta < 0 {
		theta += 360
	}
	return theta
}

// Horizontal returns the azimuth and altitude of (ra, dec) at time t.
// All angles are in degrees.
func (o *Observer) Horizontal(ra, dec float64, t time.Time) (float64, float64) {
	lst := gmst(t) + o.Longitude
	ha := math.Mod(lst-ra, 360)
	if ha < 0 {
		ha += 360
	}
	return equhor_deg(ha, dec, o.Latitude)
}
