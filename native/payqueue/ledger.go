package payqueue

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// Storage abstracts the subset of key-value functionality required by the
// order ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	orderRecordPrefix   = []byte("payqueue/order/")
	orderIndexKey       = []byte("payqueue/order/index")
	unclaimRecordPrefix = []byte("payqueue/unclaimable/")
)

type storedOrder struct {
	ID            uint64
	Client        [20]byte
	Recipient     [20]byte
	Token         [20]byte
	Amount        string
	OriginChainID uint64
	TargetChainID uint64
	Flags         uint8
	Data          [][32]byte
	State         uint8
	Timestamp     uint64
}

type orderIndexEntry struct {
	ID        uint64
	Timestamp uint64
}

// Ledger persists order outcomes and unclaimable balances as an audit trail
// next to the in-memory queue, which stays authoritative within a process.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", orderRecordPrefix, id))
}

func unclaimableKey(client, token, recipient [20]byte) []byte {
	suffix := hex.EncodeToString(client[:]) + "/" + hex.EncodeToString(token[:]) + "/" + hex.EncodeToString(recipient[:])
	buf := make([]byte, len(unclaimRecordPrefix)+len(suffix))
	copy(buf, unclaimRecordPrefix)
	copy(buf[len(unclaimRecordPrefix):], suffix)
	return buf
}

func toStoredOrder(order *QueuedOrder) storedOrder {
	stored := storedOrder{}
	if order == nil {
		return stored
	}
	stored.ID = order.ID
	stored.Client = order.Client
	stored.Recipient = order.Order.Recipient
	stored.Token = order.Order.Token
	if order.Order.Amount != nil {
		stored.Amount = order.Order.Amount.String()
	}
	stored.OriginChainID = order.Order.OriginChainID
	stored.TargetChainID = order.Order.TargetChainID
	stored.Flags = order.Order.Flags
	if len(order.Order.Data) > 0 {
		stored.Data = append([][32]byte{}, order.Order.Data...)
	}
	stored.State = uint8(order.State)
	if order.Timestamp > 0 {
		stored.Timestamp = uint64(order.Timestamp)
	}
	return stored
}

func fromStoredOrder(stored *storedOrder) (*QueuedOrder, error) {
	if stored == nil {
		return nil, fmt.Errorf("payqueue: nil stored order")
	}
	if stored.Timestamp > math.MaxInt64 {
		return nil, fmt.Errorf("payqueue: timestamp overflow for order %d", stored.ID)
	}
	state := OrderState(stored.State)
	if !state.Valid() {
		return nil, fmt.Errorf("payqueue: invalid stored state %d for order %d", stored.State, stored.ID)
	}
	order := &QueuedOrder{
		ID:     stored.ID,
		Client: stored.Client,
		Order: PaymentOrder{
			Recipient:     stored.Recipient,
			Token:         stored.Token,
			OriginChainID: stored.OriginChainID,
			TargetChainID: stored.TargetChainID,
			Flags:         stored.Flags,
		},
		State:     state,
		Timestamp: int64(stored.Timestamp),
	}
	if len(stored.Data) > 0 {
		order.Order.Data = append([][32]byte{}, stored.Data...)
	}
	if strings.TrimSpace(stored.Amount) != "" {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(stored.Amount), 10)
		if !ok {
			return nil, fmt.Errorf("payqueue: invalid stored amount %q", stored.Amount)
		}
		order.Order.Amount = amount
	} else {
		order.Order.Amount = big.NewInt(0)
	}
	return order, nil
}

// PutOrder upserts the order record, appending to the index on first write.
func (l *Ledger) PutOrder(order *QueuedOrder) error {
	if l == nil {
		return fmt.Errorf("payqueue: ledger not initialised")
	}
	if order == nil || order.ID == 0 {
		return fmt.Errorf("payqueue: ledger requires an order with a valid id")
	}
	key := orderKey(order.ID)
	var existing storedOrder
	known, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	stored := toStoredOrder(order)
	if err := l.store.KVPut(key, stored); err != nil {
		return err
	}
	if known {
		return nil
	}
	entry := orderIndexEntry{ID: stored.ID, Timestamp: stored.Timestamp}
	encoded, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	return l.store.KVAppend(orderIndexKey, encoded)
}

// GetOrder retrieves a persisted order by id.
func (l *Ledger) GetOrder(id uint64) (*QueuedOrder, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("payqueue: ledger not initialised")
	}
	var stored storedOrder
	ok, err := l.store.KVGet(orderKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	order, err := fromStoredOrder(&stored)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// ListOrders returns all persisted orders sorted by timestamp then id.
func (l *Ledger) ListOrders() ([]*QueuedOrder, error) {
	if l == nil {
		return nil, fmt.Errorf("payqueue: ledger not initialised")
	}
	var raw [][]byte
	if err := l.store.KVGetList(orderIndexKey, &raw); err != nil {
		return nil, err
	}
	entries := make([]orderIndexEntry, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var entry orderIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		if entry.ID == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp == entries[j].Timestamp {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp < entries[j].Timestamp
	})
	orders := make([]*QueuedOrder, 0, len(entries))
	for _, entry := range entries {
		order, ok, err := l.GetOrder(entry.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// PutUnclaimable records the accumulated unclaimable balance for the triple.
func (l *Ledger) PutUnclaimable(client, token, recipient [20]byte, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("payqueue: ledger not initialised")
	}
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	return l.store.KVPut(unclaimableKey(client, token, recipient), value)
}

// GetUnclaimable retrieves the persisted unclaimable balance for the triple.
func (l *Ledger) GetUnclaimable(client, token, recipient [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("payqueue: ledger not initialised")
	}
	var stored string
	ok, err := l.store.KVGet(unclaimableKey(client, token, recipient), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored) == "" {
		return big.NewInt(0), nil
	}
	amount, valid := new(big.Int).SetString(strings.TrimSpace(stored), 10)
	if !valid {
		return nil, fmt.Errorf("payqueue: invalid stored balance %q", stored)
	}
	return amount, nil
}
