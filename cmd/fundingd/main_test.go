package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"fundingvault/config"
	"fundingvault/native/payqueue"
	"fundingvault/storage"
)

func hexAddr(b byte) string {
	return fmt.Sprintf("0x%040x", b)
}

// Drives a redemption through the daemon's own wiring: the reserve and the
// seller are funded from the genesis section, and settlement draws on the
// allowance granted to the queue at startup.
func TestBuildStackSellSettlesEndToEnd(t *testing.T) {
	cfg := &config.Config{
		Backend:         "memory",
		ChainID:         1,
		IssuedToken:     config.TokenConfig{Decimals: 6},
		CollateralToken: config.TokenConfig{Decimals: 6},
		Fees: config.FeeConfig{
			ProjectSellBps:  100,
			ProjectTreasury: hexAddr(0x05),
		},
		Genesis: []config.GenesisAccount{
			{Address: hexAddr(0x01), Token: "issued", Amount: "1000000"},
			{Address: hexAddr(0xE0), Token: "collateral", Amount: "10000000"},
		},
	}
	st, err := buildStack(cfg, storage.NewMemDB(), slog.Default())
	if err != nil {
		t.Fatalf("build stack: %v", err)
	}

	oneE18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if err := st.prices.SetIssuancePrice(oneE18, 18); err != nil {
		t.Fatalf("set issuance price: %v", err)
	}
	if err := st.prices.SetRedemptionPrice(oneE18, 18); err != nil {
		t.Fatalf("set redemption price: %v", err)
	}

	var seller [20]byte
	seller[19] = 0x01
	receipt, err := st.engine.Sell(seller, seller, big.NewInt(1_000_000), big.NewInt(1))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if receipt.OrderState != payqueue.StateCompleted {
		t.Fatalf("order state %s, want completed", receipt.OrderState)
	}

	var collateral [20]byte
	collateral[19] = 0x11
	held, err := st.ledger.BalanceOf(collateral, seller)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if held.Int64() != 990_000 {
		t.Fatalf("seller payout %s, want 990000", held)
	}
}

func TestSeedGenesisRejectsMalformedAmount(t *testing.T) {
	cfg := &config.Config{
		Backend:         "memory",
		IssuedToken:     config.TokenConfig{Decimals: 6},
		CollateralToken: config.TokenConfig{Decimals: 6},
		Genesis: []config.GenesisAccount{
			{Address: hexAddr(0x01), Token: "issued", Amount: "ten"},
		},
	}
	if _, err := buildStack(cfg, storage.NewMemDB(), slog.Default()); err == nil {
		t.Fatal("expected malformed genesis amount to fail the build")
	}
}
