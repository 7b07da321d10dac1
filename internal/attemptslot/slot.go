package attemptslot

import (
	"errors"
	"sync"

	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/streamattempt"
)

// ErrFamilyOccupied is returned by Allocate when the slot already holds an
// attempt for the endpoint's address family.
var ErrFamilyOccupied = errors.New("attemptslot: address family already occupied")

// ErrUnknownFamily is returned by Allocate when the endpoint's address
// can't be classified as IPv4 or IPv6.
var ErrUnknownFamily = errors.New("attemptslot: endpoint has no classifiable address family")

// SlottableAttempt is the narrow view of a streamattempt.StreamAttempt a
// slot needs: just enough to route by family, judge slowness, and tear the
// attempt down.
type SlottableAttempt interface {
	IpEndpoint() serviceendpoint.IpEndpoint
	LoadState() streamattempt.LoadState
	IsSlow() bool
	Cancel()
}

// TcpBasedAttemptSlot holds at most one attempt per address family so a
// manager can race IPv4 against IPv6 the way Happy Eyeballs expects,
// without ever running two attempts against the same family at once.
type TcpBasedAttemptSlot struct {
	mu     sync.Mutex
	ipv4   SlottableAttempt
	ipv6   SlottableAttempt
	isSlow bool
}

// New returns an empty slot.
func New() *TcpBasedAttemptSlot {
	return &TcpBasedAttemptSlot{}
}

// Allocate places a into the slot's family-appropriate occupant, failing if
// that family is already taken.
func (s *TcpBasedAttemptSlot) Allocate(a SlottableAttempt) error {
	fam := a.IpEndpoint().Family()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch fam {
	case serviceendpoint.FamilyIPv4:
		if s.ipv4 != nil {
			return ErrFamilyOccupied
		}
		s.ipv4 = a
	case serviceendpoint.FamilyIPv6:
		if s.ipv6 != nil {
			return ErrFamilyOccupied
		}
		s.ipv6 = a
	default:
		return ErrUnknownFamily
	}
	s.recomputeSlowLocked()
	return nil
}

// Take removes and returns a from the slot if it is present, nil otherwise.
// Used once an attempt completes, successfully or not, so its slot can
// accept a fresh attempt for that family.
func (s *TcpBasedAttemptSlot) Take(a SlottableAttempt) SlottableAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ipv4 == a {
		s.ipv4 = nil
		s.recomputeSlowLocked()
		return a
	}
	if s.ipv6 == a {
		s.ipv6 = nil
		s.recomputeSlowLocked()
		return a
	}
	return nil
}

// HasFamily reports whether the slot already holds an attempt for family.
func (s *TcpBasedAttemptSlot) HasFamily(family serviceendpoint.AddressFamily) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch family {
	case serviceendpoint.FamilyIPv4:
		return s.ipv4 != nil
	case serviceendpoint.FamilyIPv6:
		return s.ipv6 != nil
	default:
		return false
	}
}

// Empty reports whether the slot holds no attempts at all.
func (s *TcpBasedAttemptSlot) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ipv4 == nil && s.ipv6 == nil
}

// Reset clears a slot back to its zero state so it can be recycled from an
// objpool.Pool once both occupants have been taken out.
func (s *TcpBasedAttemptSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipv4 = nil
	s.ipv6 = nil
	s.isSlow = false
}

// LoadState reports the most advanced state among the slot's occupants.
func (s *TcpBasedAttemptSlot) LoadState() streamattempt.LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := streamattempt.LoadStateIdle
	for _, a := range s.occupantsLocked() {
		if st := a.LoadState(); st > best {
			best = st
		}
	}
	return best
}

// IsSlow reports whether the slot holds at least one attempt and every
// occupant has individually been marked slow. The flag is recomputed
// whenever the occupants change, so it returns to false when a non-slow
// attempt is allocated, when the slot empties, or on Reset.
func (s *TcpBasedAttemptSlot) IsSlow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isSlow
}

// Refresh recomputes the slow flag, called by the owning manager after an
// occupant's own slow timer fires.
func (s *TcpBasedAttemptSlot) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeSlowLocked()
}

func (s *TcpBasedAttemptSlot) recomputeSlowLocked() {
	any := false
	allSlow := true
	for _, a := range s.occupantsLocked() {
		any = true
		if !a.IsSlow() {
			allSlow = false
		}
	}
	s.isSlow = any && allSlow
}

func (s *TcpBasedAttemptSlot) occupantsLocked() []SlottableAttempt {
	var out []SlottableAttempt
	if s.ipv4 != nil {
		out = append(out, s.ipv4)
	}
	if s.ipv6 != nil {
		out = append(out, s.ipv6)
	}
	return out
}

// CancelAll tears down every occupant. The slot itself has no logger, so a
// caller that wants a CancelReason recorded logs it before calling this.
func (s *TcpBasedAttemptSlot) CancelAll() {
	s.mu.Lock()
	occupants := s.occupantsLocked()
	s.mu.Unlock()
	for _, a := range occupants {
		a.Cancel()
	}
}
