package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"fundingvault/native/amounts"
)

var (
	// ErrInvalidPrice indicates an attempt to set a nil, zero, or negative
	// price, or a price too small to survive normalisation.
	ErrInvalidPrice = errors.New("oracle: invalid price")
	// ErrPriceNotSet indicates a read before any price was configured. There
	// is no implicit default price.
	ErrPriceNotSet = errors.New("oracle: price not set")
)

// PriceSource resolves the two prices the funding engine consumes. Both are
// returned at the canonical 18 digit precision.
type PriceSource interface {
	PriceForIssuance() (*big.Int, error)
	PriceForRedemption() (*big.Int, error)
}

// Manual holds two independently settable prices. Setters normalise
// caller-native values to the canonical internal precision so downstream fee
// and conversion math always operates on one precision regardless of which
// tokens are paired; getters denormalise to the requested output precision.
type Manual struct {
	mu         sync.RWMutex
	issuance   *big.Int
	redemption *big.Int
}

// NewManual constructs a manual oracle with both prices unset.
func NewManual() *Manual {
	return &Manual{}
}

func normalise(value *big.Int, decimals uint8) (*big.Int, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidPrice)
	}
	canonical, err := amounts.ToCanonical(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if canonical.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value below minimum resolution", ErrInvalidPrice)
	}
	return canonical, nil
}

// SetIssuancePrice stores the issuance price expressed in the supplied token
// precision.
func (m *Manual) SetIssuancePrice(value *big.Int, decimals uint8) error {
	if m == nil {
		return fmt.Errorf("oracle: not configured")
	}
	canonical, err := normalise(value, decimals)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.issuance = canonical
	m.mu.Unlock()
	return nil
}

// SetRedemptionPrice stores the redemption price expressed in the supplied
// token precision.
func (m *Manual) SetRedemptionPrice(value *big.Int, decimals uint8) error {
	if m == nil {
		return fmt.Errorf("oracle: not configured")
	}
	canonical, err := normalise(value, decimals)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.redemption = canonical
	m.mu.Unlock()
	return nil
}

// PriceForIssuance returns the issuance price at canonical precision.
func (m *Manual) PriceForIssuance() (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("oracle: not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.issuance == nil {
		return nil, ErrPriceNotSet
	}
	return new(big.Int).Set(m.issuance), nil
}

// PriceForRedemption returns the redemption price at canonical precision.
func (m *Manual) PriceForRedemption() (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("oracle: not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.redemption == nil {
		return nil, ErrPriceNotSet
	}
	return new(big.Int).Set(m.redemption), nil
}

// IssuancePrice denormalises the issuance price to the requested output
// precision, flooring when the target is coarser.
func (m *Manual) IssuancePrice(decimals uint8) (*big.Int, error) {
	canonical, err := m.PriceForIssuance()
	if err != nil {
		return nil, err
	}
	return amounts.FromCanonical(canonical, decimals)
}

// RedemptionPrice denormalises the redemption price to the requested output
// precision, flooring when the target is coarser.
func (m *Manual) RedemptionPrice(decimals uint8) (*big.Int, error) {
	canonical, err := m.PriceForRedemption()
	if err != nil {
		return nil, err
	}
	return amounts.FromCanonical(canonical, decimals)
}
