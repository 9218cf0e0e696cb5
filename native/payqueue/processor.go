package payqueue

import (
	"fmt"
	"math/big"
	"sync"

	"fundingvault/core/events"
)

type unclaimKey struct {
	client    [20]byte
	token     [20]byte
	recipient [20]byte
}

// Processor drains a client's queue head-first and settles each order
// through the token port. A pre-validation failure of the head aborts the
// whole batch so strict FIFO ordering is preserved; a transfer-time failure
// is recovered locally by routing the amount into the unclaimable ledger.
type Processor struct {
	queue   *Queue
	port    TokenPort
	emitter events.Emitter
	ledger  *Ledger

	mu          sync.Mutex
	busy        bool
	unclaimable map[unclaimKey]*big.Int
	onSettled   func(client [20]byte, amount *big.Int)
}

// NewProcessor constructs a processor bound to the queue.
func NewProcessor(queue *Queue) *Processor {
	return &Processor{
		queue:       queue,
		emitter:     events.NoopEmitter{},
		unclaimable: make(map[unclaimKey]*big.Int),
	}
}

// SetTokenPort configures the transfer capability used for settlement.
func (p *Processor) SetTokenPort(port TokenPort) { p.port = port }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (p *Processor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetLedger configures the optional persistence ledger that records
// settlement outcomes.
func (p *Processor) SetLedger(ledger *Ledger) { p.ledger = ledger }

// SetSettledCallback registers the hook invoked with the amount of every
// successfully transferred order. The funding engine uses it to decrement its
// open redemption total.
func (p *Processor) SetSettledCallback(fn func(client [20]byte, amount *big.Int)) {
	p.onSettled = fn
}

func (p *Processor) emit(evt events.Event) {
	if p == nil || p.emitter == nil {
		return
	}
	p.emitter.Emit(evt)
}

func (p *Processor) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrReentrant
	}
	p.busy = true
	return nil
}

func (p *Processor) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *Processor) recordOutcome(order *QueuedOrder) {
	if p.ledger == nil {
		return
	}
	// Persistence is an audit trail; a storage error must not undo a
	// settlement that already happened.
	_ = p.ledger.PutOrder(order)
}

// ProcessAll settles the client's queue in FIFO order until it is empty or a
// pre-validation failure aborts the batch. One acquisition per external call:
// re-entrant invocations fail with ErrReentrant.
func (p *Processor) ProcessAll(client [20]byte) error {
	if p == nil || p.queue == nil {
		return fmt.Errorf("%w: processor not configured", ErrQueueOperationFailed)
	}
	if p.port == nil {
		return fmt.Errorf("%w: token port not configured", ErrQueueOperationFailed)
	}
	if err := p.acquire(); err != nil {
		return err
	}
	defer p.release()

	for {
		id := p.queue.Head(client)
		if id == Sentinel {
			return nil
		}
		order, err := p.queue.Get(id)
		if err != nil {
			return err
		}
		// Defense in depth: re-run the enqueue checks before moving funds. A
		// malformed head blocks all FIFO-later orders rather than being
		// skipped.
		if err := func() error {
			p.queue.mu.RLock()
			defer p.queue.mu.RUnlock()
			return p.queue.validateOrder(client, order.Order)
		}(); err != nil {
			return err
		}
		amount := new(big.Int).Set(order.Order.Amount)
		transferErr := p.port.TransferFrom(order.Order.Token, p.queue.Self(), client, order.Order.Recipient, amount)
		if err := p.queue.complete(id); err != nil {
			return err
		}
		order.State = StateCompleted
		p.recordOutcome(order)
		if transferErr != nil {
			p.addUnclaimable(client, order.Order.Token, order.Order.Recipient, amount)
			p.emit(events.UnclaimableRecorded{
				OrderID:   id,
				Client:    client,
				Recipient: order.Order.Recipient,
				Token:     order.Order.Token,
				Amount:    amount,
				Reason:    transferErr.Error(),
			})
			continue
		}
		p.emit(events.OrderSettled{
			OrderID:   id,
			Client:    client,
			Recipient: order.Order.Recipient,
			Token:     order.Order.Token,
			Amount:    amount,
		})
		if p.onSettled != nil {
			p.onSettled(client, new(big.Int).Set(amount))
		}
	}
}

func (p *Processor) addUnclaimable(client, token, recipient [20]byte, amount *big.Int) {
	key := unclaimKey{client: client, token: token, recipient: recipient}
	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.unclaimable[key]
	if !ok {
		current = big.NewInt(0)
	}
	updated := new(big.Int).Add(current, amount)
	p.unclaimable[key] = updated
	if p.ledger != nil {
		_ = p.ledger.PutUnclaimable(client, token, recipient, updated)
	}
}

// Unclaimable returns the accumulated amount awaiting manual claim for the
// (client, token, recipient) triple.
func (p *Processor) Unclaimable(client, token, recipient [20]byte) *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if stored, ok := p.unclaimable[unclaimKey{client: client, token: token, recipient: recipient}]; ok {
		return new(big.Int).Set(stored)
	}
	return big.NewInt(0)
}

// ClaimPreviouslyUnclaimable pays out the full accumulated amount to the
// recipient in a single transfer. A failed transfer leaves the ledger
// unchanged so the claim can be retried; a zero balance fails cleanly and
// never double-pays.
func (p *Processor) ClaimPreviouslyUnclaimable(client, token, recipient [20]byte) (*big.Int, error) {
	if p == nil || p.queue == nil {
		return nil, fmt.Errorf("%w: processor not configured", ErrQueueOperationFailed)
	}
	if p.port == nil {
		return nil, fmt.Errorf("%w: token port not configured", ErrQueueOperationFailed)
	}
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.release()

	key := unclaimKey{client: client, token: token, recipient: recipient}
	p.mu.Lock()
	amount, ok := p.unclaimable[key]
	if !ok || amount.Sign() == 0 {
		p.mu.Unlock()
		return nil, ErrNothingToClaim
	}
	delete(p.unclaimable, key)
	p.mu.Unlock()

	payout := new(big.Int).Set(amount)
	if err := p.port.TransferFrom(token, p.queue.Self(), client, recipient, payout); err != nil {
		// Restore the balance; the amount is not lost, only this attempt.
		p.mu.Lock()
		p.unclaimable[key] = amount
		p.mu.Unlock()
		return nil, fmt.Errorf("payqueue: claim transfer failed: %w", err)
	}
	p.mu.Lock()
	if p.ledger != nil {
		_ = p.ledger.PutUnclaimable(client, token, recipient, big.NewInt(0))
	}
	p.mu.Unlock()
	p.emit(events.UnclaimableClaimed{
		Client:    client,
		Recipient: recipient,
		Token:     token,
		To:        recipient,
		Amount:    payout,
	})
	return payout, nil
}
