package payqueue

import (
	"math"
	"math/big"
	"math/bits"
)

// Sentinel denotes "no node" for both head and tail pointers of an empty
// client queue.
const Sentinel = math.MaxUint64

// OrderState tracks an order through the settlement state machine.
// StateProcessing is initial; StateCompleted and StateCancelled are terminal.
type OrderState uint8

const (
	StateProcessing OrderState = iota
	StateCompleted
	StateCancelled
)

// Valid reports whether the state is a known member of the machine.
func (s OrderState) Valid() bool {
	switch s {
	case StateProcessing, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

func (s OrderState) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Flag bit positions for optional PaymentOrder fields. The flags byte plus
// ordered data word list is the wire contract inherited from the encoded
// order format; Go callers use the typed accessors instead of indexing.
const (
	FlagOrderReference uint8 = iota
)

// PaymentOrder describes a single queued payout. OriginChainID and
// TargetChainID exist for future cross-domain use and are currently always
// equal.
type PaymentOrder struct {
	Recipient     [20]byte
	Token         [20]byte
	Amount        *big.Int
	OriginChainID uint64
	TargetChainID uint64
	Flags         uint8
	Data          [][32]byte
}

// Clone returns a deep copy of the order.
func (o PaymentOrder) Clone() PaymentOrder {
	clone := o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	}
	if len(o.Data) > 0 {
		clone.Data = append([][32]byte{}, o.Data...)
	}
	return clone
}

func (o PaymentOrder) dataWord(flag uint8) ([32]byte, bool) {
	if o.Flags&(1<<flag) == 0 {
		return [32]byte{}, false
	}
	// Words are stored in flag-bit order; the index of a word is the number
	// of lower flag bits set.
	idx := bits.OnesCount8(o.Flags & (1<<flag - 1))
	if idx >= len(o.Data) {
		return [32]byte{}, false
	}
	return o.Data[idx], true
}

// OrderReference returns the order-correlation word when present.
func (o PaymentOrder) OrderReference() ([32]byte, bool) {
	return o.dataWord(FlagOrderReference)
}

// WithOrderReference returns a copy of the order carrying the correlation
// word.
func (o PaymentOrder) WithOrderReference(ref [32]byte) PaymentOrder {
	clone := o.Clone()
	if clone.Flags&(1<<FlagOrderReference) != 0 {
		idx := bits.OnesCount8(clone.Flags & (1<<FlagOrderReference - 1))
		clone.Data[idx] = ref
		return clone
	}
	clone.Flags |= 1 << FlagOrderReference
	clone.Data = append([][32]byte{ref}, clone.Data...)
	return clone
}

// QueuedOrder wraps a payment order with its queue identity and state. IDs
// are 1-based and allocated monotonically across all clients; 0 is reserved
// as invalid.
type QueuedOrder struct {
	ID        uint64
	Client    [20]byte
	Order     PaymentOrder
	State     OrderState
	Timestamp int64
}

// Clone returns a deep copy so callers cannot mutate queue-owned state.
func (q *QueuedOrder) Clone() *QueuedOrder {
	if q == nil {
		return nil
	}
	out := *q
	out.Order = q.Order.Clone()
	return &out
}
