package chrono

import "time"

// API is the clock every component that stamps times should depend on.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the wall clock and reports times in the shelter's timezone, report
// timestamps carry no zone so they are interpreted in Location().
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads `tz` (an IANA name), an empty tz means UTC.
func NewStandardImpl(tz string) (StandardImpl, error) {
	if tz == "" {
		return StandardImpl{location: time.UTC}, nil
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Fixed is a clock frozen at a single instant, used by tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Location() *time.Location {
	if f.At.Location() == nil {
		return time.UTC
	}
	return f.At.Location()
}
