// Package clock abstracts the trusted time source used for tolerance-window
// validation, so tests can pin "now".
package clock

import "time"

// Clock is the trusted time source.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

// Now returns the current UTC instant.
func (System) Now() time.Time { return time.Now().UTC() }
