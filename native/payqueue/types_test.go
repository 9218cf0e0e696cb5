package payqueue

import (
	"math/big"
	"testing"
)

func TestOrderStateMachine(t *testing.T) {
	if StateProcessing.Terminal() {
		t.Fatal("processing must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateCancelled.Terminal() {
		t.Fatal("completed and cancelled must be terminal")
	}
	if OrderState(9).Valid() {
		t.Fatal("unknown state reported valid")
	}
	if StateProcessing.String() != "processing" || StateCompleted.String() != "completed" || StateCancelled.String() != "cancelled" {
		t.Fatal("unexpected state names")
	}
}

func TestOrderReferenceAccessor(t *testing.T) {
	base := PaymentOrder{Recipient: addr(0x10), Token: tokenAddr, Amount: big.NewInt(1)}
	if _, ok := base.OrderReference(); ok {
		t.Fatal("reference reported present on bare order")
	}
	var ref [32]byte
	ref[0] = 0xab
	tagged := base.WithOrderReference(ref)
	got, ok := tagged.OrderReference()
	if !ok || got != ref {
		t.Fatalf("reference round trip failed: %v %v", got, ok)
	}
	// The original order is untouched.
	if base.Flags != 0 || len(base.Data) != 0 {
		t.Fatal("WithOrderReference mutated its receiver")
	}
	// Overwriting replaces the word in place.
	var other [32]byte
	other[0] = 0xcd
	replaced := tagged.WithOrderReference(other)
	got, ok = replaced.OrderReference()
	if !ok || got != other {
		t.Fatalf("reference overwrite failed: %v %v", got, ok)
	}
	if len(replaced.Data) != 1 {
		t.Fatalf("overwrite grew data list to %d", len(replaced.Data))
	}
}

func TestQueuedOrderCloneIsDeep(t *testing.T) {
	original := &QueuedOrder{
		ID:     7,
		Client: clientAddr,
		Order:  PaymentOrder{Recipient: addr(0x10), Token: tokenAddr, Amount: big.NewInt(55)},
		State:  StateProcessing,
	}
	clone := original.Clone()
	clone.Order.Amount.SetInt64(0)
	if original.Order.Amount.Int64() != 55 {
		t.Fatalf("clone aliases amount: %s", original.Order.Amount)
	}
}
