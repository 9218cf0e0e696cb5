package funding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundingvault/core/events"
	"fundingvault/native/amounts"
	"fundingvault/native/common"
	"fundingvault/native/fees"
	"fundingvault/native/oracle"
	"fundingvault/native/payqueue"
)

// Roles consumed through the injected authority predicate.
const (
	RolePriceSetter   = "funding.price_setter"
	RoleQueueExecutor = "funding.queue_executor"
	RoleAdmin         = "funding.admin"
)

var (
	errNotConfigured = errors.New("funding engine: not configured")
	// ErrZeroAmount indicates a zero or nil amount where a positive amount is
	// required.
	ErrZeroAmount = errors.New("funding: amount must be positive")
	// ErrSlippageExceeded indicates the post-fee proceeds fell below the
	// caller's minimum.
	ErrSlippageExceeded = errors.New("funding: proceeds below minimum amount out")
	// ErrInsufficientDeposit indicates the seller does not hold the tokens
	// being redeemed.
	ErrInsufficientDeposit = errors.New("funding: deposit exceeds caller balance")
	// ErrInsufficientReserve indicates the reserve cannot cover the gross
	// collateral return of a redemption.
	ErrInsufficientReserve = errors.New("funding: reserve below gross collateral return")
	// ErrInvalidOracle indicates an oracle that does not implement the
	// expected price source capability. Rejected at configuration time.
	ErrInvalidOracle = errors.New("funding: oracle does not implement price source")
	// ErrInvalidTreasury indicates a zero treasury address.
	ErrInvalidTreasury = errors.New("funding: treasury must not be the zero address")
)

// TokenPort extends the queue's transfer capability with direct transfers
// from engine-owned balances.
type TokenPort interface {
	payqueue.TokenPort
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// SupplyPort mints and burns the issued token. Minting/burning mechanics are
// external; the engine only invokes the capability.
type SupplyPort interface {
	Mint(token, to [20]byte, amount *big.Int) error
	Burn(token, from [20]byte, amount *big.Int) error
}

// FeeRegistry resolves the protocol treasuries and fee percentages for the
// issuance and redemption flows.
type FeeRegistry interface {
	ProtocolFees() (buyTreasury, sellTreasury [20]byte, buyBps, sellBps uint32, err error)
}

// PriceWriter is the optional write side of an oracle. The engine's price
// setters pass through to it when the configured oracle supports manual
// updates.
type PriceWriter interface {
	SetIssuancePrice(value *big.Int, decimals uint8) error
	SetRedemptionPrice(value *big.Int, decimals uint8) error
}

// SellReceipt summarises the outcome of a redemption.
type SellReceipt struct {
	OrderID         uint64
	Deposit         *big.Int
	GrossCollateral *big.Int
	NetCollateral   *big.Int
	ProtocolFee     *big.Int
	ProjectFee      *big.Int
	ExchangeRate    *big.Int
	OrderState      payqueue.OrderState
}

// BuyReceipt summarises the outcome of an issuance purchase.
type BuyReceipt struct {
	Collateral   *big.Int
	ProtocolFee  *big.Int
	Issued       *big.Int
	ExchangeRate *big.Int
}

// Engine orchestrates issuance and redemption. Redemptions settle through
// the payment queue rather than by immediate transfer; the engine's own
// address is both the payment client and the reserve account.
type Engine struct {
	self      [20]byte
	queue     *payqueue.Queue
	processor *payqueue.Processor
	prices    oracle.PriceSource
	writer    PriceWriter
	registry  FeeRegistry
	port      TokenPort
	supply    SupplyPort
	policy    *fees.Policy
	auth      common.Authority
	emitter   events.Emitter
	nowFn     func() int64

	projectTreasury [20]byte

	issuedToken        [20]byte
	issuedDecimals     uint8
	collateralToken    [20]byte
	collateralDecimals uint8
	chainID            uint64

	autoSettle bool

	mu sync.Mutex

	openMu         sync.Mutex
	openRedemption *big.Int
}

// NewEngine constructs an engine identified by the supplied address with a
// no-op emitter and an empty fee policy.
func NewEngine(self [20]byte) *Engine {
	return &Engine{
		self:           self,
		policy:         fees.NewPolicy(),
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		autoSettle:     true,
		openRedemption: big.NewInt(0),
	}
}

// Self returns the engine's own address.
func (e *Engine) Self() [20]byte { return e.self }

// SetQueue configures the payment queue.
func (e *Engine) SetQueue(queue *payqueue.Queue) { e.queue = queue }

// SetProcessor configures the settlement processor and registers the
// completion callback that keeps the open redemption total in sync.
func (e *Engine) SetProcessor(processor *payqueue.Processor) {
	e.processor = processor
	if processor != nil {
		processor.SetSettledCallback(e.creditSettlement)
	}
}

// SetOracle configures the price source. A nil source is rejected at
// configuration time; when the source also supports manual writes the
// engine's price setters pass through to it.
func (e *Engine) SetOracle(caller [20]byte, src oracle.PriceSource) error {
	if err := common.Guard(e.auth, caller, RoleAdmin); err != nil {
		return err
	}
	if src == nil {
		return ErrInvalidOracle
	}
	e.prices = src
	if writer, ok := src.(PriceWriter); ok {
		e.writer = writer
	} else {
		e.writer = nil
	}
	return nil
}

// SetFeeRegistry configures the external protocol fee registry.
func (e *Engine) SetFeeRegistry(registry FeeRegistry) { e.registry = registry }

// SetTokenPort configures the transfer capability.
func (e *Engine) SetTokenPort(port TokenPort) { e.port = port }

// SetSupplyPort configures the mint/burn capability for the issued token.
func (e *Engine) SetSupplyPort(supply SupplyPort) { e.supply = supply }

// SetAuthority configures the role predicate gating privileged operations.
func (e *Engine) SetAuthority(auth common.Authority) { e.auth = auth }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetIssuedToken configures the issued token and its native precision.
func (e *Engine) SetIssuedToken(token [20]byte, decimals uint8) {
	e.issuedToken = token
	e.issuedDecimals = decimals
}

// SetCollateralToken configures the collateral token and its native
// precision.
func (e *Engine) SetCollateralToken(token [20]byte, decimals uint8) {
	e.collateralToken = token
	e.collateralDecimals = decimals
}

// SetChainID configures the chain identifier stamped on payment orders. The
// origin and target are currently always equal.
func (e *Engine) SetChainID(id uint64) { e.chainID = id }

// SetAutoSettle controls whether Sell triggers settlement in the same call.
// When disabled, orders wait for an explicit ExecuteRedemptionQueue.
func (e *Engine) SetAutoSettle(enabled bool) { e.autoSettle = enabled }

// Policy exposes the project fee policy for configuration.
func (e *Engine) Policy() *fees.Policy { return e.policy }

// SetProjectTreasury configures the recipient of project fees.
func (e *Engine) SetProjectTreasury(caller, treasury [20]byte) error {
	if err := common.Guard(e.auth, caller, RoleAdmin); err != nil {
		return err
	}
	if treasury == ([20]byte{}) {
		return ErrInvalidTreasury
	}
	e.projectTreasury = treasury
	return nil
}

// SetProjectBuyFee configures the project fee charged on issuance.
func (e *Engine) SetProjectBuyFee(caller [20]byte, bps uint32) error {
	if err := common.Guard(e.auth, caller, RoleAdmin); err != nil {
		return err
	}
	if err := e.policy.SetProjectBuyBps(bps); err != nil {
		return err
	}
	e.emit(events.FeePolicyUpdated{Scope: "project.buy", Bps: bps})
	return nil
}

// SetProjectSellFee configures the project fee charged on redemption.
func (e *Engine) SetProjectSellFee(caller [20]byte, bps uint32) error {
	if err := common.Guard(e.auth, caller, RoleAdmin); err != nil {
		return err
	}
	if err := e.policy.SetProjectSellBps(bps); err != nil {
		return err
	}
	e.emit(events.FeePolicyUpdated{Scope: "project.sell", Bps: bps})
	return nil
}

// SetIssuancePrice forwards to the configured oracle's write side.
func (e *Engine) SetIssuancePrice(caller [20]byte, value *big.Int, decimals uint8) error {
	if err := common.Guard(e.auth, caller, RolePriceSetter); err != nil {
		return err
	}
	if e.writer == nil {
		return ErrInvalidOracle
	}
	if err := e.writer.SetIssuancePrice(value, decimals); err != nil {
		return err
	}
	e.emit(events.PriceUpdated{Issuance: true, Price: value, Setter: caller})
	return nil
}

// SetRedemptionPrice forwards to the configured oracle's write side.
func (e *Engine) SetRedemptionPrice(caller [20]byte, value *big.Int, decimals uint8) error {
	if err := common.Guard(e.auth, caller, RolePriceSetter); err != nil {
		return err
	}
	if e.writer == nil {
		return ErrInvalidOracle
	}
	if err := e.writer.SetRedemptionPrice(value, decimals); err != nil {
		return err
	}
	e.emit(events.PriceUpdated{Issuance: false, Price: value, Setter: caller})
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) configured() error {
	if e == nil || e.queue == nil || e.processor == nil || e.prices == nil || e.registry == nil || e.port == nil || e.supply == nil {
		return errNotConfigured
	}
	return nil
}

func (e *Engine) creditSettlement(client [20]byte, amount *big.Int) {
	if client != e.self || amount == nil {
		return
	}
	e.openMu.Lock()
	defer e.openMu.Unlock()
	e.openRedemption = new(big.Int).Sub(e.openRedemption, amount)
	if e.openRedemption.Sign() < 0 {
		e.openRedemption = big.NewInt(0)
	}
}

// OpenRedemptionAmount returns the collateral currently promised to queued
// redemptions but not yet paid out.
func (e *Engine) OpenRedemptionAmount() *big.Int {
	e.openMu.Lock()
	defer e.openMu.Unlock()
	return new(big.Int).Set(e.openRedemption)
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func orderReference(caller, receiver [20]byte, amount *big.Int, ts int64) [32]byte {
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts))
	hash := ethcrypto.Keccak256Hash(caller[:], receiver[:], amount.Bytes(), tsBytes[:])
	return [32]byte(hash)
}

// Sell redeems depositAmount of the issued token for collateral paid out
// through the payment queue. All checks run before any state mutation so a
// rejected call is fully atomic; the settlement trigger at the end is best
// effort and its failures never roll back the sell.
func (e *Engine) Sell(caller, receiver [20]byte, depositAmount, minAmountOut *big.Int) (*SellReceipt, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if !positive(depositAmount) || !positive(minAmountOut) {
		return nil, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	_, sellTreasury, _, sellBps, err := e.registry.ProtocolFees()
	if err != nil {
		return nil, fmt.Errorf("funding: fee registry: %w", err)
	}
	price, err := e.prices.PriceForRedemption()
	if err != nil {
		return nil, err
	}

	// Issuance-side split: protocol fee only, no project fee on the burn.
	issuanceSplit := fees.Split(depositAmount, sellBps, 0)
	depositCanonical, err := amounts.ToCanonical(issuanceSplit.Net, e.issuedDecimals)
	if err != nil {
		return nil, err
	}
	grossCanonical := new(big.Int).Mul(depositCanonical, price)
	grossCanonical.Quo(grossCanonical, amounts.Pow10(amounts.CanonicalDecimals))
	grossCollateral, err := amounts.FromCanonical(grossCanonical, e.collateralDecimals)
	if err != nil {
		return nil, err
	}

	collateralSplit := fees.Split(grossCollateral, sellBps, e.policy.ProjectSellBps())
	net := collateralSplit.Net
	if net.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: net %s, minimum %s", ErrSlippageExceeded, net, minAmountOut)
	}

	held, err := e.port.BalanceOf(e.issuedToken, caller)
	if err != nil {
		return nil, err
	}
	if held.Cmp(depositAmount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientDeposit, held, depositAmount)
	}
	reserve, err := e.port.BalanceOf(e.collateralToken, e.self)
	if err != nil {
		return nil, err
	}
	if reserve.Cmp(grossCollateral) < 0 {
		return nil, fmt.Errorf("%w: reserve %s, gross %s", ErrInsufficientReserve, reserve, grossCollateral)
	}

	if collateralSplit.ProjectFee.Sign() > 0 && e.projectTreasury == ([20]byte{}) {
		return nil, ErrInvalidTreasury
	}

	now := e.nowFn()
	order := payqueue.PaymentOrder{
		Recipient:     receiver,
		Token:         e.collateralToken,
		Amount:        net,
		OriginChainID: e.chainID,
		TargetChainID: e.chainID,
	}.WithOrderReference(orderReference(caller, receiver, net, now))
	// The queue's own validation runs before any transfer so an order it
	// would refuse cannot leak fees out of the reserve.
	if err := e.queue.Validate(e.self, order); err != nil {
		return nil, err
	}

	// Collateral-side fees leave the reserve before the order is enqueued so
	// the queue's balance validation sees the final reserve.
	if collateralSplit.ProtocolFee.Sign() > 0 {
		if err := e.port.Transfer(e.collateralToken, e.self, sellTreasury, collateralSplit.ProtocolFee); err != nil {
			return nil, fmt.Errorf("funding: protocol fee transfer: %w", err)
		}
	}
	if collateralSplit.ProjectFee.Sign() > 0 {
		if err := e.port.Transfer(e.collateralToken, e.self, e.projectTreasury, collateralSplit.ProjectFee); err != nil {
			return nil, fmt.Errorf("funding: project fee transfer: %w", err)
		}
	}

	orderID, err := e.queue.Enqueue(e.self, order)
	if err != nil {
		return nil, err
	}

	// Burn the full deposit, then restore the protocol's issuance-side cut
	// to the treasury: circulating supply nets out without moving
	// collateral for that fee.
	if err := e.supply.Burn(e.issuedToken, caller, depositAmount); err != nil {
		return nil, fmt.Errorf("funding: burn: %w", err)
	}
	if issuanceSplit.ProtocolFee.Sign() > 0 {
		if err := e.supply.Mint(e.issuedToken, sellTreasury, issuanceSplit.ProtocolFee); err != nil {
			return nil, fmt.Errorf("funding: fee mint: %w", err)
		}
	}

	e.openMu.Lock()
	e.openRedemption = new(big.Int).Add(e.openRedemption, net)
	e.openMu.Unlock()

	totalProtocol := new(big.Int).Add(issuanceSplit.ProtocolFee, collateralSplit.ProtocolFee)
	e.emit(events.TokensSold{
		OrderID:       orderID,
		Seller:        caller,
		Receiver:      receiver,
		Deposit:       depositAmount,
		ExchangeRate:  price,
		ProtocolFee:   totalProtocol,
		ProjectFee:    collateralSplit.ProjectFee,
		NetCollateral: net,
		OrderState:    payqueue.StateProcessing.String(),
	})

	// Best-effort settlement so redemption can complete inside the same
	// call when reserves allow. Failures here never roll back the sell.
	state := payqueue.StateProcessing
	if e.autoSettle {
		if err := e.processor.ProcessAll(e.self); err == nil {
			if settled, getErr := e.queue.Get(orderID); getErr == nil {
				state = settled.State
			}
		}
	}

	return &SellReceipt{
		OrderID:         orderID,
		Deposit:         new(big.Int).Set(depositAmount),
		GrossCollateral: grossCollateral,
		NetCollateral:   new(big.Int).Set(net),
		ProtocolFee:     totalProtocol,
		ProjectFee:      collateralSplit.ProjectFee,
		ExchangeRate:    price,
		OrderState:      state,
	}, nil
}

// Buy exchanges collateral for newly issued tokens at the issuance price.
// No project fee is charged on issuance; the protocol buy fee comes off the
// collateral before conversion.
func (e *Engine) Buy(caller, receiver [20]byte, collateralAmount, minAmountOut *big.Int) (*BuyReceipt, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if !positive(collateralAmount) || !positive(minAmountOut) {
		return nil, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	buyTreasury, _, buyBps, _, err := e.registry.ProtocolFees()
	if err != nil {
		return nil, fmt.Errorf("funding: fee registry: %w", err)
	}
	price, err := e.prices.PriceForIssuance()
	if err != nil {
		return nil, err
	}

	split := fees.Split(collateralAmount, buyBps, 0)
	netCanonical, err := amounts.ToCanonical(split.Net, e.collateralDecimals)
	if err != nil {
		return nil, err
	}
	issuedCanonical := new(big.Int).Mul(netCanonical, amounts.Pow10(amounts.CanonicalDecimals))
	issuedCanonical.Quo(issuedCanonical, price)
	issued, err := amounts.FromCanonical(issuedCanonical, e.issuedDecimals)
	if err != nil {
		return nil, err
	}
	if issued.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: issued %s, minimum %s", ErrSlippageExceeded, issued, minAmountOut)
	}

	if err := e.port.TransferFrom(e.collateralToken, e.self, caller, e.self, collateralAmount); err != nil {
		return nil, fmt.Errorf("funding: collateral transfer: %w", err)
	}
	if split.ProtocolFee.Sign() > 0 {
		if err := e.port.Transfer(e.collateralToken, e.self, buyTreasury, split.ProtocolFee); err != nil {
			return nil, fmt.Errorf("funding: protocol fee transfer: %w", err)
		}
	}
	if err := e.supply.Mint(e.issuedToken, receiver, issued); err != nil {
		return nil, fmt.Errorf("funding: mint: %w", err)
	}

	e.emit(events.TokensBought{
		Buyer:        caller,
		Receiver:     receiver,
		Collateral:   collateralAmount,
		ExchangeRate: price,
		ProtocolFee:  split.ProtocolFee,
		Issued:       issued,
	})

	return &BuyReceipt{
		Collateral:   new(big.Int).Set(collateralAmount),
		ProtocolFee:  split.ProtocolFee,
		Issued:       issued,
		ExchangeRate: price,
	}, nil
}

// DepositReserve moves collateral from the caller into the reserve backing
// queued redemptions.
func (e *Engine) DepositReserve(from [20]byte, amount *big.Int) error {
	if err := e.configured(); err != nil {
		return err
	}
	if !positive(amount) {
		return ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.port.TransferFrom(e.collateralToken, e.self, from, e.self, amount); err != nil {
		return fmt.Errorf("funding: reserve deposit: %w", err)
	}
	e.emit(events.ReserveDeposited{From: from, Amount: amount})
	return nil
}

// ExecuteRedemptionQueue drains the engine's redemption queue. Gated on the
// queue executor role.
func (e *Engine) ExecuteRedemptionQueue(caller [20]byte) error {
	if err := e.configured(); err != nil {
		return err
	}
	if err := common.Guard(e.auth, caller, RoleQueueExecutor); err != nil {
		return err
	}
	return e.processor.ProcessAll(e.self)
}

// CancelRedemption cancels a still-queued redemption order. The order's
// receiver may always cancel; anyone else needs the admin role. The promised
// collateral is released from the open redemption total.
func (e *Engine) CancelRedemption(caller [20]byte, orderID uint64) error {
	if err := e.configured(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.queue.Get(orderID)
	if err != nil {
		return err
	}
	if order.Order.Recipient != caller {
		if err := common.Guard(e.auth, caller, RoleAdmin); err != nil {
			return err
		}
	}
	if err := e.queue.Cancel(orderID, e.self); err != nil {
		return err
	}
	e.creditSettlement(e.self, order.Order.Amount)
	return nil
}

// ClaimPreviouslyUnclaimable pays out the full unclaimable balance held for
// the recipient under the engine's payment client identity. A successful
// claim releases the amount from the open redemption total.
func (e *Engine) ClaimPreviouslyUnclaimable(token, recipient [20]byte) (*big.Int, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	paid, err := e.processor.ClaimPreviouslyUnclaimable(e.self, token, recipient)
	if err != nil {
		return nil, err
	}
	e.creditSettlement(e.self, paid)
	return paid, nil
}

// Unclaimable reports the accumulated unclaimable amount for the recipient.
func (e *Engine) Unclaimable(token, recipient [20]byte) *big.Int {
	if e == nil || e.processor == nil {
		return big.NewInt(0)
	}
	return e.processor.Unclaimable(e.self, token, recipient)
}
