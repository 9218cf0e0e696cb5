package payqueue

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv    map[string][]byte
	lists map[string][][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte), lists: make(map[string][][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockStorage) KVAppend(key []byte, value []byte) error {
	k := string(key)
	m.lists[k] = append(m.lists[k], append([]byte(nil), value...))
	return nil
}

func (m *mockStorage) KVGetList(key []byte, out interface{}) error {
	encoded, err := rlp.EncodeToBytes(m.lists[string(key)])
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(encoded, out)
}

func TestLedgerOrderRoundTrip(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	var ref [32]byte
	ref[0] = 0xfe
	order := &QueuedOrder{
		ID:     3,
		Client: clientAddr,
		Order: PaymentOrder{
			Recipient:     addr(0x10),
			Token:         tokenAddr,
			Amount:        big.NewInt(123456789),
			OriginChainID: 1,
			TargetChainID: 1,
		}.WithOrderReference(ref),
		State:     StateProcessing,
		Timestamp: 1_800_000_000,
	}
	if err := ledger.PutOrder(order); err != nil {
		t.Fatalf("put: %v", err)
	}
	fetched, ok, err := ledger.GetOrder(3)
	if err != nil || !ok {
		t.Fatalf("get: %v ok=%v", err, ok)
	}
	if fetched.Order.Amount.Cmp(order.Order.Amount) != 0 {
		t.Fatalf("amount mismatch: %s", fetched.Order.Amount)
	}
	if got, ok := fetched.Order.OrderReference(); !ok || got != ref {
		t.Fatalf("reference lost in round trip: %v %v", got, ok)
	}
	if fetched.State != StateProcessing || fetched.Timestamp != 1_800_000_000 {
		t.Fatalf("metadata mismatch: %+v", fetched)
	}
}

func TestLedgerUpsertKeepsSingleIndexEntry(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	order := &QueuedOrder{
		ID:        1,
		Client:    clientAddr,
		Order:     PaymentOrder{Recipient: addr(0x10), Token: tokenAddr, Amount: big.NewInt(10)},
		State:     StateProcessing,
		Timestamp: 100,
	}
	if err := ledger.PutOrder(order); err != nil {
		t.Fatalf("put: %v", err)
	}
	order.State = StateCompleted
	if err := ledger.PutOrder(order); err != nil {
		t.Fatalf("update: %v", err)
	}
	orders, err := ledger.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected one indexed order, got %d", len(orders))
	}
	if orders[0].State != StateCompleted {
		t.Fatalf("state update lost: %s", orders[0].State)
	}
}

func TestLedgerListOrdersSorted(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	for i, ts := range []int64{300, 100, 200} {
		order := &QueuedOrder{
			ID:        uint64(i + 1),
			Client:    clientAddr,
			Order:     PaymentOrder{Recipient: addr(0x10), Token: tokenAddr, Amount: big.NewInt(1)},
			State:     StateProcessing,
			Timestamp: ts,
		}
		if err := ledger.PutOrder(order); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	orders, err := ledger.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 || orders[0].ID != 2 || orders[1].ID != 3 || orders[2].ID != 1 {
		t.Fatalf("unexpected ordering: %+v", orders)
	}
}

func TestLedgerRejectsInvalidOrder(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	if err := ledger.PutOrder(nil); err == nil {
		t.Fatal("expected error for nil order")
	}
	if err := ledger.PutOrder(&QueuedOrder{}); err == nil {
		t.Fatal("expected error for zero id")
	}
}

func TestLedgerUnclaimableRoundTrip(t *testing.T) {
	ledger := NewLedger(newMockStorage())
	recipient := addr(0x10)
	stored, err := ledger.GetUnclaimable(clientAddr, tokenAddr, recipient)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if stored.Sign() != 0 {
		t.Fatalf("expected zero for unknown triple, got %s", stored)
	}
	if err := ledger.PutUnclaimable(clientAddr, tokenAddr, recipient, big.NewInt(777)); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, err = ledger.GetUnclaimable(clientAddr, tokenAddr, recipient)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Int64() != 777 {
		t.Fatalf("unexpected balance %s", stored)
	}
}
