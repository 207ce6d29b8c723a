package quota

import "time"

// Clock supplies the wall-clock time used to pick the current period.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now on every call.
var SystemClock Clock = ClockFunc(time.Now)
