// Package tz projects wall-clock readings between IANA zones.
//
// The only primitive it relies on is the forward mapping from a physical
// instant to the wall clock it reads as in a zone (time.Time.In). The inverse,
// finding the instant a wall clock denotes in a zone, is recovered by a short
// fixed-point search in Instant.
package tz

import (
	"errors"
	"fmt"
	"time"

	"dayplan/internal/model"
)

// ErrUnknownTimezone is returned for zone names the zone database does not know.
var ErrUnknownTimezone = errors.New("unknown timezone")

// Local is the viewer-zone name that stands for the resolver's home zone.
const Local = "local"

// maxRefinements bounds the fixed-point search. Offsets are whole minutes and
// change at most once near any instant for real zones, so three rounds converge.
const maxRefinements = 3

// Curated is the default list of viewer zones offered next to "local".
var Curated = []string{
	"Asia/Shanghai",
	"Asia/Tokyo",
	"America/New_York",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Paris",
	"Australia/Sydney",
	"UTC",
}

// Resolver turns zone names into locations. The empty name and Local both
// resolve to Home.
type Resolver struct {
	Home *time.Location
}

// Default resolves "local" to the process's local zone.
var Default = Resolver{Home: time.Local}

// Resolve loads the named zone.
func (r Resolver) Resolve(name string) (*time.Location, error) {
	if name == "" || name == Local {
		if r.Home == nil {
			return time.Local, nil
		}
		return r.Home, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// Name returns the concrete zone name a viewer zone stands for, so that
// rules never persist the relative name "local".
func (r Resolver) Name(name string) (string, error) {
	loc, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// Project converts w, asserted to be local time in source, into the wall
// clock the same instant reads as in target.
func (r Resolver) Project(w model.WallClock, source, target string) (model.WallClock, error) {
	src, err := r.Resolve(source)
	if err != nil {
		return model.WallClock{}, err
	}
	dst, err := r.Resolve(target)
	if err != nil {
		return model.WallClock{}, err
	}
	return ProjectIn(w, src, dst), nil
}

// ProjectIn is Project for already resolved locations.
func ProjectIn(w model.WallClock, src, dst *time.Location) model.WallClock {
	return ZoneClock(Instant(w, src), dst)
}

// ZoneClock reads instant's wall clock in loc.
func ZoneClock(instant time.Time, loc *time.Location) model.WallClock {
	return model.WallClockOf(instant.In(loc))
}

// Instant finds the physical instant at which loc's clock reads w. The seed
// treats w as if it were already UTC; each round reads the candidate in loc
// and shifts it back by the observed clock error.
//
// A reading inside a spring-forward gap has no instant; the search stops on
// one side of the gap, off by the gap length. An ambiguous fall-back reading
// resolves to whichever of its two instants the search reaches first.
func Instant(w model.WallClock, loc *time.Location) time.Time {
	want := w.At()
	candidate := want
	for i := 0; i < maxRefinements; i++ {
		got := ZoneClock(candidate, loc).At()
		residual := got.Sub(want)
		if residual.Abs() < time.Minute {
			break
		}
		candidate = candidate.Add(-residual)
	}
	return candidate
}
