package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInsufficientBalance indicates the sender cannot cover the transfer.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInsufficientAllowance indicates the spender was not approved for the
	// requested amount.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	// ErrRecipientBlocked indicates the token refuses transfers to the
	// recipient. Settlement treats this as a transfer-time failure and routes
	// the amount to the unclaimable ledger.
	ErrRecipientBlocked = errors.New("bank: recipient blocked")
)

type balanceKey struct {
	token   [20]byte
	account [20]byte
}

type allowanceKey struct {
	token   [20]byte
	owner   [20]byte
	spender [20]byte
}

// Bank is an in-process token ledger. It backs the funding engine and the
// payment queue in tests and in the daemon's standalone deployment mode,
// where no external token contracts exist.
type Bank struct {
	mu         sync.RWMutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	blocked    map[balanceKey]struct{}
}

// New constructs an empty bank.
func New() *Bank {
	return &Bank{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		blocked:    make(map[balanceKey]struct{}),
	}
}

func cloneAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("bank: amount must not be nil")
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("bank: amount must not be negative")
	}
	return new(big.Int).Set(v), nil
}

func (b *Bank) balance(key balanceKey) *big.Int {
	if stored, ok := b.balances[key]; ok {
		return stored
	}
	return big.NewInt(0)
}

// BalanceOf returns the account's balance for the token.
func (b *Bank) BalanceOf(token, account [20]byte) (*big.Int, error) {
	if b == nil {
		return nil, fmt.Errorf("bank: not configured")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.balance(balanceKey{token: token, account: account})), nil
}

// Allowance returns how much the spender may move on the owner's behalf.
func (b *Bank) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	if b == nil {
		return nil, fmt.Errorf("bank: not configured")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if stored, ok := b.allowances[allowanceKey{token: token, owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(stored), nil
	}
	return big.NewInt(0), nil
}

// Approve sets the spender's allowance over the owner's balance.
func (b *Bank) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("bank: not configured")
	}
	amt, err := cloneAmount(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = amt
	b.mu.Unlock()
	return nil
}

// Mint credits newly issued units to the account.
func (b *Bank) Mint(token, to [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("bank: not configured")
	}
	amt, err := cloneAmount(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := balanceKey{token: token, account: to}
	b.balances[key] = new(big.Int).Add(b.balance(key), amt)
	return nil
}

// Burn destroys units held by the account.
func (b *Bank) Burn(token, from [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("bank: not configured")
	}
	amt, err := cloneAmount(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := balanceKey{token: token, account: from}
	held := b.balance(key)
	if held.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, held, amt)
	}
	b.balances[key] = new(big.Int).Sub(held, amt)
	return nil
}

// Block marks the recipient as refused by the token. Subsequent transfers to
// the account fail at transfer time, mirroring blacklisting transfer hooks.
func (b *Bank) Block(token, account [20]byte) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.blocked[balanceKey{token: token, account: account}] = struct{}{}
	b.mu.Unlock()
}

// Unblock lifts a previous Block.
func (b *Bank) Unblock(token, account [20]byte) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.blocked, balanceKey{token: token, account: account})
	b.mu.Unlock()
}

func (b *Bank) move(token, from, to [20]byte, amount *big.Int) error {
	if _, blocked := b.blocked[balanceKey{token: token, account: to}]; blocked {
		return ErrRecipientBlocked
	}
	fromKey := balanceKey{token: token, account: from}
	held := b.balance(fromKey)
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, held, amount)
	}
	toKey := balanceKey{token: token, account: to}
	b.balances[fromKey] = new(big.Int).Sub(held, amount)
	b.balances[toKey] = new(big.Int).Add(b.balance(toKey), amount)
	return nil
}

// Transfer moves tokens from the caller-owned account.
func (b *Bank) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("bank: not configured")
	}
	amt, err := cloneAmount(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(token, from, to, amt)
}

// TransferFrom moves tokens on behalf of the owner, consuming allowance.
func (b *Bank) TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error {
	if b == nil {
		return fmt.Errorf("bank: not configured")
	}
	amt, err := cloneAmount(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := allowanceKey{token: token, owner: from, spender: spender}
	allowance, ok := b.allowances[key]
	if !ok || allowance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: need %s", ErrInsufficientAllowance, amt)
	}
	if err := b.move(token, from, to, amt); err != nil {
		return err
	}
	b.allowances[key] = new(big.Int).Sub(allowance, amt)
	return nil
}
