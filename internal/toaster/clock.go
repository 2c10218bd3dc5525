package toaster

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

func NewRealClock() *RealClock { return &RealClock{} }

func (*RealClock) Now() time.Time { return time.Now().UTC() }
