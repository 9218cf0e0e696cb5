package events

import (
	"math/big"

	"fundingvault/core/types"
)

const (
	// TypeTokensSold is emitted when a redemption order has been created for a
	// seller.
	TypeTokensSold = "funding.tokens_sold"
	// TypeTokensBought is emitted when collateral has been exchanged for newly
	// issued tokens.
	TypeTokensBought = "funding.tokens_bought"
	// TypeReserveDeposited is emitted when collateral is added to the reserve.
	TypeReserveDeposited = "funding.reserve_deposited"
	// TypeIssuancePriceUpdated is emitted when the issuance price changes.
	TypeIssuancePriceUpdated = "funding.issuance_price_updated"
	// TypeRedemptionPriceUpdated is emitted when the redemption price changes.
	TypeRedemptionPriceUpdated = "funding.redemption_price_updated"
	// TypeFeePolicyUpdated is emitted when a configured fee percentage changes.
	TypeFeePolicyUpdated = "funding.fee_policy_updated"
)

// TokensSold captures the full fee and rate breakdown of a redemption.
type TokensSold struct {
	OrderID       uint64
	Seller        [20]byte
	Receiver      [20]byte
	Deposit       *big.Int
	ExchangeRate  *big.Int
	ProtocolFee   *big.Int
	ProjectFee    *big.Int
	NetCollateral *big.Int
	OrderState    string
}

// EventType satisfies the events.Event interface.
func (TokensSold) EventType() string { return TypeTokensSold }

// Event converts the payload into its wire representation.
func (e TokensSold) Event() *types.Event {
	return &types.Event{Type: TypeTokensSold, Attributes: map[string]string{
		"orderId":       uintString(e.OrderID),
		"seller":        addrHex(e.Seller),
		"receiver":      addrHex(e.Receiver),
		"deposit":       amountString(e.Deposit),
		"exchangeRate":  amountString(e.ExchangeRate),
		"protocolFee":   amountString(e.ProtocolFee),
		"projectFee":    amountString(e.ProjectFee),
		"netCollateral": amountString(e.NetCollateral),
		"orderState":    e.OrderState,
	}}
}

// TokensBought captures an issuance-side purchase.
type TokensBought struct {
	Buyer        [20]byte
	Receiver     [20]byte
	Collateral   *big.Int
	ExchangeRate *big.Int
	ProtocolFee  *big.Int
	Issued       *big.Int
}

// EventType satisfies the events.Event interface.
func (TokensBought) EventType() string { return TypeTokensBought }

// Event converts the payload into its wire representation.
func (e TokensBought) Event() *types.Event {
	return &types.Event{Type: TypeTokensBought, Attributes: map[string]string{
		"buyer":        addrHex(e.Buyer),
		"receiver":     addrHex(e.Receiver),
		"collateral":   amountString(e.Collateral),
		"exchangeRate": amountString(e.ExchangeRate),
		"protocolFee":  amountString(e.ProtocolFee),
		"issued":       amountString(e.Issued),
	}}
}

// ReserveDeposited captures a direct reserve top-up.
type ReserveDeposited struct {
	From   [20]byte
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (ReserveDeposited) EventType() string { return TypeReserveDeposited }

// Event converts the payload into its wire representation.
func (e ReserveDeposited) Event() *types.Event {
	return &types.Event{Type: TypeReserveDeposited, Attributes: map[string]string{
		"from":   addrHex(e.From),
		"amount": amountString(e.Amount),
	}}
}

// PriceUpdated captures a change to either oracle price. Issuance selects
// which of the two prices was written.
type PriceUpdated struct {
	Issuance bool
	Price    *big.Int
	Setter   [20]byte
}

// EventType satisfies the events.Event interface.
func (e PriceUpdated) EventType() string {
	if e.Issuance {
		return TypeIssuancePriceUpdated
	}
	return TypeRedemptionPriceUpdated
}

// Event converts the payload into its wire representation.
func (e PriceUpdated) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"price":  amountString(e.Price),
		"setter": addrHex(e.Setter),
	}}
}

// FeePolicyUpdated captures a change to a configured fee percentage.
type FeePolicyUpdated struct {
	Scope string
	Bps   uint32
}

// EventType satisfies the events.Event interface.
func (FeePolicyUpdated) EventType() string { return TypeFeePolicyUpdated }

// Event converts the payload into its wire representation.
func (e FeePolicyUpdated) Event() *types.Event {
	return &types.Event{Type: TypeFeePolicyUpdated, Attributes: map[string]string{
		"scope": e.Scope,
		"bps":   uintString(uint64(e.Bps)),
	}}
}
