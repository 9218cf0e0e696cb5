package fees

import (
	"fmt"
	"math/big"
	"sync"
)

// BasisPoints is the denominator for all fee percentages: 10,000 bps = 100%.
const BasisPoints = 10_000

// ErrFeeTooHigh indicates an attempt to configure a fee at or above 100%.
// Fee bounds are enforced when the policy is written, not per call.
var ErrFeeTooHigh = fmt.Errorf("fees: percentage must be below %d bps", BasisPoints)

// Breakdown summarises the result of splitting a gross amount into the net
// amount and the individual fee components.
type Breakdown struct {
	Net         *big.Int
	ProtocolFee *big.Int
	ProjectFee  *big.Int
}

// Clone returns a copy with duplicated big.Int values.
func (b Breakdown) Clone() Breakdown {
	return Breakdown{
		Net:         cloneOrZero(b.Net),
		ProtocolFee: cloneOrZero(b.ProtocolFee),
		ProjectFee:  cloneOrZero(b.ProjectFee),
	}
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Split computes the protocol fee on the gross amount and the project fee on
// the remainder after the protocol fee. Applying the second fee to the
// remainder rather than the same gross base keeps the two fees from summing
// to more than intended; net = gross - protocolFee - projectFee. Both
// divisions truncate toward zero.
//
// Callers are expected to have validated the percentages when configuring the
// policy; Split itself never rejects.
func Split(gross *big.Int, protocolBps, projectBps uint32) Breakdown {
	result := Breakdown{
		Net:         cloneOrZero(gross),
		ProtocolFee: big.NewInt(0),
		ProjectFee:  big.NewInt(0),
	}
	if result.Net.Sign() <= 0 {
		return result
	}
	if protocolBps > 0 {
		fee := new(big.Int).Mul(result.Net, big.NewInt(int64(protocolBps)))
		fee.Div(fee, big.NewInt(BasisPoints))
		result.ProtocolFee = fee
		result.Net = new(big.Int).Sub(result.Net, fee)
	}
	if projectBps > 0 && result.Net.Sign() > 0 {
		fee := new(big.Int).Mul(result.Net, big.NewInt(int64(projectBps)))
		fee.Div(fee, big.NewInt(BasisPoints))
		result.ProjectFee = fee
		result.Net = new(big.Int).Sub(result.Net, fee)
	}
	return result
}

// Policy holds the configured project fee percentages. Protocol percentages
// come from the external fee registry; the policy only owns the fees the
// project itself controls.
type Policy struct {
	mu          sync.RWMutex
	projectBuy  uint32
	projectSell uint32
}

// NewPolicy constructs an empty policy with all fees at zero.
func NewPolicy() *Policy {
	return &Policy{}
}

// SetProjectBuyBps configures the project fee charged on issuance.
func (p *Policy) SetProjectBuyBps(bps uint32) error {
	if p == nil {
		return fmt.Errorf("fees: policy not configured")
	}
	if bps >= BasisPoints {
		return fmt.Errorf("%w: got %d", ErrFeeTooHigh, bps)
	}
	p.mu.Lock()
	p.projectBuy = bps
	p.mu.Unlock()
	return nil
}

// SetProjectSellBps configures the project fee charged on redemption.
func (p *Policy) SetProjectSellBps(bps uint32) error {
	if p == nil {
		return fmt.Errorf("fees: policy not configured")
	}
	if bps >= BasisPoints {
		return fmt.Errorf("%w: got %d", ErrFeeTooHigh, bps)
	}
	p.mu.Lock()
	p.projectSell = bps
	p.mu.Unlock()
	return nil
}

// ProjectBuyBps returns the configured issuance-side project fee.
func (p *Policy) ProjectBuyBps() uint32 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.projectBuy
}

// ProjectSellBps returns the configured redemption-side project fee.
func (p *Policy) ProjectSellBps() uint32 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.projectSell
}
