package events

import (
	"math/big"
	"strings"

	"fundingvault/core/types"
)

const (
	// TypeOrderCreated is emitted when a payment order enters the queue.
	TypeOrderCreated = "payqueue.order_created"
	// TypeOrderStateChanged is emitted on every order state transition.
	TypeOrderStateChanged = "payqueue.order_state_changed"
	// TypeOrderSettled is emitted once an order's transfer succeeds.
	TypeOrderSettled = "payqueue.order_settled"
	// TypeUnclaimableRecorded is emitted when a transfer-time failure routes an
	// amount into the unclaimable ledger instead of aborting the batch.
	TypeUnclaimableRecorded = "payqueue.unclaimable_recorded"
	// TypeUnclaimableClaimed is emitted when a previously unclaimable amount is
	// paid out in full.
	TypeUnclaimableClaimed = "payqueue.unclaimable_claimed"
)

// OrderCreated captures a freshly enqueued payment order.
type OrderCreated struct {
	OrderID   uint64
	Client    [20]byte
	Recipient [20]byte
	Token     [20]byte
	Amount    *big.Int
	Reference [32]byte
	State     string
}

// EventType satisfies the events.Event interface.
func (OrderCreated) EventType() string { return TypeOrderCreated }

// Event converts the payload into its wire representation.
func (e OrderCreated) Event() *types.Event {
	attrs := map[string]string{
		"orderId":   uintString(e.OrderID),
		"client":    addrHex(e.Client),
		"recipient": addrHex(e.Recipient),
		"token":     addrHex(e.Token),
		"amount":    amountString(e.Amount),
	}
	if e.Reference != ([32]byte{}) {
		attrs["reference"] = wordHex(e.Reference)
	}
	if state := strings.TrimSpace(e.State); state != "" {
		attrs["state"] = state
	}
	return &types.Event{Type: TypeOrderCreated, Attributes: attrs}
}

// OrderStateChanged records an order moving between states.
type OrderStateChanged struct {
	OrderID  uint64
	Client   [20]byte
	Previous string
	Current  string
}

// EventType satisfies the events.Event interface.
func (OrderStateChanged) EventType() string { return TypeOrderStateChanged }

// Event converts the payload into its wire representation.
func (e OrderStateChanged) Event() *types.Event {
	return &types.Event{Type: TypeOrderStateChanged, Attributes: map[string]string{
		"orderId":  uintString(e.OrderID),
		"client":   addrHex(e.Client),
		"previous": e.Previous,
		"current":  e.Current,
	}}
}

// OrderSettled records a successful settlement transfer.
type OrderSettled struct {
	OrderID   uint64
	Client    [20]byte
	Recipient [20]byte
	Token     [20]byte
	Amount    *big.Int
}

// EventType satisfies the events.Event interface.
func (OrderSettled) EventType() string { return TypeOrderSettled }

// Event converts the payload into its wire representation.
func (e OrderSettled) Event() *types.Event {
	return &types.Event{Type: TypeOrderSettled, Attributes: map[string]string{
		"orderId":   uintString(e.OrderID),
		"client":    addrHex(e.Client),
		"recipient": addrHex(e.Recipient),
		"token":     addrHex(e.Token),
		"amount":    amountString(e.Amount),
	}}
}

// UnclaimableRecorded captures an amount deferred to the unclaimable ledger.
type UnclaimableRecorded struct {
	OrderID   uint64
	Client    [20]byte
	Recipient [20]byte
	Token     [20]byte
	Amount    *big.Int
	Reason    string
}

// EventType satisfies the events.Event interface.
func (UnclaimableRecorded) EventType() string { return TypeUnclaimableRecorded }

// Event converts the payload into its wire representation.
func (e UnclaimableRecorded) Event() *types.Event {
	attrs := map[string]string{
		"orderId":   uintString(e.OrderID),
		"client":    addrHex(e.Client),
		"recipient": addrHex(e.Recipient),
		"token":     addrHex(e.Token),
		"amount":    amountString(e.Amount),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeUnclaimableRecorded, Attributes: attrs}
}

// UnclaimableClaimed captures the full payout of an accumulated unclaimable
// balance.
type UnclaimableClaimed struct {
	Client    [20]byte
	Recipient [20]byte
	Token     [20]byte
	To        [20]byte
	Amount    *big.Int
}

// EventType satisfies the events.Event interface.
func (UnclaimableClaimed) EventType() string { return TypeUnclaimableClaimed }

// Event converts the payload into its wire representation.
func (e UnclaimableClaimed) Event() *types.Event {
	return &types.Event{Type: TypeUnclaimableClaimed, Attributes: map[string]string{
		"client":    addrHex(e.Client),
		"recipient": addrHex(e.Recipient),
		"token":     addrHex(e.Token),
		"to":        addrHex(e.To),
		"amount":    amountString(e.Amount),
	}}
}
