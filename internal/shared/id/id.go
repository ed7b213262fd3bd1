// Package id provides ULID generation for the ability manager.
//
// Ids produced here never identify abilities or missions (those use the
// token table and the mission id pool). They tag work that crosses a process
// boundary so logs on both sides can be correlated:
//   - RequestID: one admin/IPC HTTP request (X-Request-ID)
//   - SwitchID: one foreground user switch, from request to switch-done
//   - CallID: one outbound call to a hosted process or the app spawner
//
// ULIDs sort by creation time, so a grep over logs reads in order.
package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes of the typed ids
const (
	RequestPrefix = "req"
	SwitchPrefix  = "usw"
	CallPrefix    = "call"
)

type (
	// RequestID identifies an inbound API request
	RequestID string
	// SwitchID identifies one user switch
	SwitchID string
	// CallID identifies an outbound collaborator call
	CallID string
)

func (v RequestID) String() string { return string(v) }
func (v SwitchID) String() string  { return string(v) }
func (v CallID) String() string    { return string(v) }

// Source hands out monotonic ULIDs; it is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSource creates a source seeded from crypto/rand
func NewSource() *Source {
	return &Source{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// ULID returns the next id
func (s *Source) ULID() ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
}

// String returns the next id in its canonical form
func (s *Source) String() string {
	return s.ULID().String()
}

// Prefixed returns prefix_<ULID>
func (s *Source) Prefixed(prefix string) string {
	return prefix + "_" + s.String()
}

var std = NewSource()

// NewRequestID generates a request id
func NewRequestID() RequestID { return RequestID(std.Prefixed(RequestPrefix)) }

// NewSwitchID generates a user switch id
func NewSwitchID() SwitchID { return SwitchID(std.Prefixed(SwitchPrefix)) }

// NewCallID generates an outbound call id
func NewCallID() CallID { return CallID(std.Prefixed(CallPrefix)) }

// IsValid reports whether s is a bare ULID
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// IsValidPrefixed reports whether s is prefix_<ULID>
func IsValidPrefixed(s, prefix string) bool {
	p, rest, ok := strings.Cut(s, "_")
	return ok && p == prefix && IsValid(rest)
}

// Timestamp returns the creation time of a bare or prefixed id
func Timestamp(s string) (time.Time, error) {
	if _, rest, ok := strings.Cut(s, "_"); ok {
		s = rest
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
