package payqueue

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"fundingvault/core/events"
)

// TokenPort is the transfer capability the queue consumes. The spender
// argument of TransferFrom is the queue identity; implementations decide how
// allowances are enforced.
type TokenPort interface {
	BalanceOf(token, account [20]byte) (*big.Int, error)
	Allowance(token, owner, spender [20]byte) (*big.Int, error)
	TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error
}

// list is a doubly-linked list of order ids realised as two index maps plus
// head/tail pointers. Insertion is always at the tail so creation order is
// settlement order; removal relinks neighbours and may happen mid-list.
type list struct {
	next map[uint64]uint64
	prev map[uint64]uint64
	head uint64
	tail uint64
	size int
}

func newList() *list {
	return &list{
		next: make(map[uint64]uint64),
		prev: make(map[uint64]uint64),
		head: Sentinel,
		tail: Sentinel,
	}
}

func (l *list) append(id uint64) {
	if l.tail == Sentinel {
		l.head = id
		l.tail = id
		l.next[id] = Sentinel
		l.prev[id] = Sentinel
		l.size = 1
		return
	}
	l.next[l.tail] = id
	l.prev[id] = l.tail
	l.next[id] = Sentinel
	l.tail = id
	l.size++
}

func (l *list) remove(id uint64) {
	prev, ok := l.prev[id]
	if !ok {
		return
	}
	next := l.next[id]
	if prev == Sentinel {
		l.head = next
	} else {
		l.next[prev] = next
	}
	if next == Sentinel {
		l.tail = prev
	} else {
		l.prev[next] = prev
	}
	delete(l.next, id)
	delete(l.prev, id)
	l.size--
}

// Queue owns the global order table and the per-client FIFO lists. All
// mutations happen under the queue mutex; the enclosing call is the
// transaction boundary, so no partial state survives a failed operation.
type Queue struct {
	mu      sync.RWMutex
	self    [20]byte
	port    TokenPort
	orders  map[uint64]*QueuedOrder
	lists   map[[20]byte]*list
	nextID  uint64
	emitter events.Emitter
	nowFn   func() int64
}

// NewQueue constructs an empty queue identified by the supplied address. The
// identity is used to reject orders naming the queue as their recipient and
// as the spender for allowance checks.
func NewQueue(self [20]byte) *Queue {
	return &Queue{
		self:    self,
		orders:  make(map[uint64]*QueuedOrder),
		lists:   make(map[[20]byte]*list),
		nextID:  1,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Self returns the queue identity address.
func (q *Queue) Self() [20]byte {
	if q == nil {
		return [20]byte{}
	}
	return q.self
}

// SetTokenPort configures the transfer capability used for balance and
// allowance validation.
func (q *Queue) SetTokenPort(port TokenPort) { q.port = port }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (q *Queue) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		q.emitter = events.NoopEmitter{}
		return
	}
	q.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (q *Queue) SetNowFunc(now func() int64) {
	if now == nil {
		q.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	q.nowFn = now
}

func (q *Queue) emit(evt events.Event) {
	if q == nil || q.emitter == nil {
		return
	}
	q.emitter.Emit(evt)
}

// validateOrder enforces the recipient and funding invariants shared by
// enqueue and settlement pre-validation. Every violation collapses into the
// single queue-operation-failed class, with detail preserved for diagnostics.
func (q *Queue) validateOrder(client [20]byte, order PaymentOrder) error {
	if order.Recipient == ([20]byte{}) {
		return fmt.Errorf("%w: recipient must not be the zero address", ErrQueueOperationFailed)
	}
	if order.Recipient == q.self {
		return fmt.Errorf("%w: recipient must not be the queue itself", ErrQueueOperationFailed)
	}
	if order.Recipient == order.Token {
		return fmt.Errorf("%w: recipient must not be the settlement token", ErrQueueOperationFailed)
	}
	if order.Amount == nil || order.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrQueueOperationFailed)
	}
	if q.port == nil {
		return fmt.Errorf("%w: token port not configured", ErrQueueOperationFailed)
	}
	balance, err := q.port.BalanceOf(order.Token, client)
	if err != nil {
		return fmt.Errorf("%w: balance lookup: %v", ErrQueueOperationFailed, err)
	}
	if balance.Cmp(order.Amount) < 0 {
		return fmt.Errorf("%w: client balance %s below order amount %s", ErrQueueOperationFailed, balance, order.Amount)
	}
	allowance, err := q.port.Allowance(order.Token, client, q.self)
	if err != nil {
		return fmt.Errorf("%w: allowance lookup: %v", ErrQueueOperationFailed, err)
	}
	if allowance.Cmp(order.Amount) < 0 {
		return fmt.Errorf("%w: allowance %s below order amount %s", ErrQueueOperationFailed, allowance, order.Amount)
	}
	return nil
}

// Validate runs enqueue validation without mutating the queue. Callers that
// move funds before enqueueing use it to keep a rejected order free of side
// effects.
func (q *Queue) Validate(client [20]byte, order PaymentOrder) error {
	if q == nil {
		return fmt.Errorf("%w: queue not configured", ErrQueueOperationFailed)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.validateOrder(client, order)
}

// Enqueue validates the order and appends it to the client's list tail in
// state processing. The returned id is never zero.
func (q *Queue) Enqueue(client [20]byte, order PaymentOrder) (uint64, error) {
	if q == nil {
		return 0, fmt.Errorf("%w: queue not configured", ErrQueueOperationFailed)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.validateOrder(client, order); err != nil {
		return 0, err
	}
	id := q.nextID
	q.nextID++
	queued := &QueuedOrder{
		ID:        id,
		Client:    client,
		Order:     order.Clone(),
		State:     StateProcessing,
		Timestamp: q.nowFn(),
	}
	q.orders[id] = queued
	lst, ok := q.lists[client]
	if !ok {
		lst = newList()
		q.lists[client] = lst
	}
	lst.append(id)
	created := events.OrderCreated{
		OrderID:   id,
		Client:    client,
		Recipient: order.Recipient,
		Token:     order.Token,
		Amount:    queued.Order.Amount,
		State:     queued.State.String(),
	}
	if ref, ok := order.OrderReference(); ok {
		created.Reference = ref
	}
	q.emit(created)
	return id, nil
}

// Head returns the id of the next order to settle, or Sentinel when empty.
func (q *Queue) Head(client [20]byte) uint64 {
	if q == nil {
		return Sentinel
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if lst, ok := q.lists[client]; ok {
		return lst.head
	}
	return Sentinel
}

// Tail returns the id of the most recently enqueued order, or Sentinel.
func (q *Queue) Tail(client [20]byte) uint64 {
	if q == nil {
		return Sentinel
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if lst, ok := q.lists[client]; ok {
		return lst.tail
	}
	return Sentinel
}

// Size returns the number of orders currently in state processing for the
// client.
func (q *Queue) Size(client [20]byte) int {
	if q == nil {
		return 0
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if lst, ok := q.lists[client]; ok {
		return lst.size
	}
	return 0
}

// Exists reports whether the id names an order owned by the client.
func (q *Queue) Exists(id uint64, client [20]byte) bool {
	if q == nil {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	order, ok := q.orders[id]
	return ok && order.Client == client
}

// Get returns a copy of the order.
func (q *Queue) Get(id uint64) (*QueuedOrder, error) {
	if q == nil {
		return nil, ErrOrderNotFound
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	order, ok := q.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return order.Clone(), nil
}

// Cancel transitions a processing order to cancelled and unlinks it,
// supporting removal from any list position. Terminal orders are rejected
// naming both the current and the attempted state.
func (q *Queue) Cancel(id uint64, client [20]byte) error {
	if q == nil {
		return ErrOrderNotFound
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	order, ok := q.orders[id]
	if !ok || order.Client != client {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return q.finalize(order, StateCancelled)
}

// complete transitions a processing order to completed and unlinks it. Used
// by the settlement processor.
func (q *Queue) complete(id uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	order, ok := q.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return q.finalize(order, StateCompleted)
}

func (q *Queue) finalize(order *QueuedOrder, to OrderState) error {
	if order.State.Terminal() {
		return transitionError(order.ID, order.State, to)
	}
	if !to.Terminal() {
		return transitionError(order.ID, order.State, to)
	}
	previous := order.State
	order.State = to
	if lst, ok := q.lists[order.Client]; ok {
		lst.remove(order.ID)
	}
	q.emit(events.OrderStateChanged{
		OrderID:  order.ID,
		Client:   order.Client,
		Previous: previous.String(),
		Current:  to.String(),
	})
	return nil
}
