package bank

import (
	"errors"
	"math/big"
	"testing"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var (
	token = addr(0x02)
	alice = addr(0x0A)
	bob   = addr(0x0B)
	carol = addr(0x0C)
)

func balanceOf(t *testing.T, b *Bank, account [20]byte) int64 {
	t.Helper()
	held, err := b.BalanceOf(token, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return held.Int64()
}

func TestMintBurnTransfer(t *testing.T) {
	b := New()
	if err := b.Mint(token, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Transfer(token, alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balanceOf(t, b, alice); got != 600 {
		t.Fatalf("alice %d, want 600", got)
	}
	if got := balanceOf(t, b, bob); got != 400 {
		t.Fatalf("bob %d, want 400", got)
	}
	if err := b.Burn(token, bob, big.NewInt(400)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := b.Burn(token, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferRequiresBalance(t *testing.T) {
	b := New()
	if err := b.Transfer(token, alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := b.Transfer(token, alice, bob, nil); err == nil {
		t.Fatal("expected error for nil amount")
	}
	if err := b.Transfer(token, alice, bob, big.NewInt(-5)); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	b := New()
	if err := b.Mint(token, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferFrom(token, carol, alice, bob, big.NewInt(100)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := b.Approve(token, alice, carol, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := b.TransferFrom(token, carol, alice, bob, big.NewInt(100)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, err := b.Allowance(token, alice, carol)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if remaining.Int64() != 200 {
		t.Fatalf("allowance %s, want 200", remaining)
	}
	// A failed move must not consume allowance.
	if err := b.TransferFrom(token, carol, alice, bob, big.NewInt(900)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	remaining, _ = b.Allowance(token, alice, carol)
	if remaining.Int64() != 200 {
		t.Fatalf("failed transfer consumed allowance: %s", remaining)
	}
}

func TestBlockedRecipientFailsAtTransferTime(t *testing.T) {
	b := New()
	if err := b.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	b.Block(token, bob)
	if err := b.Transfer(token, alice, bob, big.NewInt(50)); !errors.Is(err, ErrRecipientBlocked) {
		t.Fatalf("expected ErrRecipientBlocked, got %v", err)
	}
	if got := balanceOf(t, b, alice); got != 100 {
		t.Fatalf("balance moved despite block: %d", got)
	}
	b.Unblock(token, bob)
	if err := b.Transfer(token, alice, bob, big.NewInt(50)); err != nil {
		t.Fatalf("transfer after unblock: %v", err)
	}
}

func TestBalanceCopiesAreDefensive(t *testing.T) {
	b := New()
	if err := b.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	held, _ := b.BalanceOf(token, alice)
	held.SetInt64(0)
	if got := balanceOf(t, b, alice); got != 100 {
		t.Fatalf("internal balance mutated through getter: %d", got)
	}
}
