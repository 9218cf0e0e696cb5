package funding

import (
	"fmt"
	"sync"

	"fundingvault/native/fees"
)

// StaticRegistry is an in-process FeeRegistry with percentages validated at
// write time. Deployments that charge no protocol fees can leave it zeroed.
type StaticRegistry struct {
	mu           sync.RWMutex
	buyTreasury  [20]byte
	sellTreasury [20]byte
	buyBps       uint32
	sellBps      uint32
}

// NewStaticRegistry constructs a registry with zero fees and zero treasuries.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{}
}

// SetBuyFee configures the issuance-side protocol fee and its treasury.
func (r *StaticRegistry) SetBuyFee(treasury [20]byte, bps uint32) error {
	if bps >= fees.BasisPoints {
		return fmt.Errorf("%w: got %d", fees.ErrFeeTooHigh, bps)
	}
	if bps > 0 && treasury == ([20]byte{}) {
		return ErrInvalidTreasury
	}
	r.mu.Lock()
	r.buyTreasury = treasury
	r.buyBps = bps
	r.mu.Unlock()
	return nil
}

// SetSellFee configures the redemption-side protocol fee and its treasury.
func (r *StaticRegistry) SetSellFee(treasury [20]byte, bps uint32) error {
	if bps >= fees.BasisPoints {
		return fmt.Errorf("%w: got %d", fees.ErrFeeTooHigh, bps)
	}
	if bps > 0 && treasury == ([20]byte{}) {
		return ErrInvalidTreasury
	}
	r.mu.Lock()
	r.sellTreasury = treasury
	r.sellBps = bps
	r.mu.Unlock()
	return nil
}

// ProtocolFees satisfies FeeRegistry.
func (r *StaticRegistry) ProtocolFees() (buyTreasury, sellTreasury [20]byte, buyBps, sellBps uint32, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buyTreasury, r.sellTreasury, r.buyBps, r.sellBps, nil
}
