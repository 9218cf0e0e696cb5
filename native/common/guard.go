package common

import (
	"errors"
	"sync"
)

// ErrUnauthorized indicates the caller does not hold the required role.
var ErrUnauthorized = errors.New("unauthorized")

// Authority answers whether an address holds a named role. Role management
// itself lives outside this module; engines only consume the predicate.
type Authority interface {
	HasRole(addr [20]byte, role string) bool
}

// Guard rejects callers missing the role. A nil authority or empty role
// leaves the operation open.
func Guard(auth Authority, addr [20]byte, role string) error {
	if auth == nil || role == "" {
		return nil
	}
	if !auth.HasRole(addr, role) {
		return ErrUnauthorized
	}
	return nil
}

// StaticAuthority is a fixed role table used by tests and the daemon's
// single-operator deployment mode.
type StaticAuthority struct {
	mu    sync.RWMutex
	roles map[string]map[[20]byte]struct{}
}

// NewStaticAuthority constructs an empty role table.
func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{roles: make(map[string]map[[20]byte]struct{})}
}

// Grant assigns the role to the address.
func (a *StaticAuthority) Grant(addr [20]byte, role string) {
	if a == nil || role == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	holders, ok := a.roles[role]
	if !ok {
		holders = make(map[[20]byte]struct{})
		a.roles[role] = holders
	}
	holders[addr] = struct{}{}
}

// Revoke removes the role from the address.
func (a *StaticAuthority) Revoke(addr [20]byte, role string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if holders, ok := a.roles[role]; ok {
		delete(holders, addr)
	}
}

// HasRole implements the Authority interface.
func (a *StaticAuthority) HasRole(addr [20]byte, role string) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	holders, ok := a.roles[role]
	if !ok {
		return false
	}
	_, held := holders[addr]
	return held
}
