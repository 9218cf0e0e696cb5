package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"fundingvault/native/amounts"
	"fundingvault/native/common"
	"fundingvault/native/oracle"
	"fundingvault/native/payqueue"
)

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) == 0 {
		return &RPCError{Code: codeInvalidParams, Message: "params object required"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "malformed params", Data: err.Error()}
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, *RPCError) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return out, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s must be a 20-byte hex address", field)}
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAmount(field, value string) (*big.Int, *RPCError) {
	amount, err := amounts.Parse(value)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	return amount, nil
}

func engineError(err error) *RPCError {
	if errors.Is(err, common.ErrUnauthorized) {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	return &RPCError{Code: codeServerError, Message: err.Error()}
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

type sellParams struct {
	Caller       string `json:"caller"`
	Receiver     string `json:"receiver"`
	Deposit      string `json:"deposit"`
	MinAmountOut string `json:"minAmountOut"`
}

type sellResult struct {
	OrderID         uint64 `json:"orderId"`
	Deposit         string `json:"deposit"`
	GrossCollateral string `json:"grossCollateral"`
	NetCollateral   string `json:"netCollateral"`
	ProtocolFee     string `json:"protocolFee"`
	ProjectFee      string `json:"projectFee"`
	ExchangeRate    string `json:"exchangeRate"`
	OrderState      string `json:"orderState"`
}

func (s *Server) handleSell(req *RPCRequest) (interface{}, *RPCError) {
	var params sellParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receiver, rpcErr := parseAddress("receiver", params.Receiver)
	if rpcErr != nil {
		return nil, rpcErr
	}
	deposit, rpcErr := parseAmount("deposit", params.Deposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	minOut, rpcErr := parseAmount("minAmountOut", params.MinAmountOut)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.engine.Sell(caller, receiver, deposit, minOut)
	if err != nil {
		return nil, engineError(err)
	}
	return sellResult{
		OrderID:         receipt.OrderID,
		Deposit:         receipt.Deposit.String(),
		GrossCollateral: receipt.GrossCollateral.String(),
		NetCollateral:   receipt.NetCollateral.String(),
		ProtocolFee:     receipt.ProtocolFee.String(),
		ProjectFee:      receipt.ProjectFee.String(),
		ExchangeRate:    receipt.ExchangeRate.String(),
		OrderState:      receipt.OrderState.String(),
	}, nil
}

type buyParams struct {
	Caller       string `json:"caller"`
	Receiver     string `json:"receiver"`
	Collateral   string `json:"collateral"`
	MinAmountOut string `json:"minAmountOut"`
}

type buyResult struct {
	Collateral   string `json:"collateral"`
	ProtocolFee  string `json:"protocolFee"`
	Issued       string `json:"issued"`
	ExchangeRate string `json:"exchangeRate"`
}

func (s *Server) handleBuy(req *RPCRequest) (interface{}, *RPCError) {
	var params buyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receiver, rpcErr := parseAddress("receiver", params.Receiver)
	if rpcErr != nil {
		return nil, rpcErr
	}
	collateral, rpcErr := parseAmount("collateral", params.Collateral)
	if rpcErr != nil {
		return nil, rpcErr
	}
	minOut, rpcErr := parseAmount("minAmountOut", params.MinAmountOut)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.engine.Buy(caller, receiver, collateral, minOut)
	if err != nil {
		return nil, engineError(err)
	}
	return buyResult{
		Collateral:   receipt.Collateral.String(),
		ProtocolFee:  receipt.ProtocolFee.String(),
		Issued:       receipt.Issued.String(),
		ExchangeRate: receipt.ExchangeRate.String(),
	}, nil
}

type depositParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

func (s *Server) handleDepositReserve(req *RPCRequest) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.DepositReserve(from, amount); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleExecuteQueue(req *RPCRequest) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ExecuteRedemptionQueue(caller); err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"ok":             true,
		"openRedemption": s.engine.OpenRedemptionAmount().String(),
	}, nil
}

type claimParams struct {
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleClaimUnclaimable(req *RPCRequest) (interface{}, *RPCError) {
	var params claimParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipient, rpcErr := parseAddress("recipient", params.Recipient)
	if rpcErr != nil {
		return nil, rpcErr
	}
	paid, err := s.engine.ClaimPreviouslyUnclaimable(token, recipient)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]string{"paid": paid.String()}, nil
}

func (s *Server) handleUnclaimable(req *RPCRequest) (interface{}, *RPCError) {
	var params claimParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipient, rpcErr := parseAddress("recipient", params.Recipient)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"amount": s.engine.Unclaimable(token, recipient).String()}, nil
}

type cancelParams struct {
	Caller  string `json:"caller"`
	OrderID uint64 `json:"orderId"`
}

func (s *Server) handleCancel(req *RPCRequest) (interface{}, *RPCError) {
	var params cancelParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.OrderID == 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "orderId required"}
	}
	if err := s.engine.CancelRedemption(caller, params.OrderID); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleOpenRedemption(*RPCRequest) (interface{}, *RPCError) {
	return map[string]string{"openRedemption": s.engine.OpenRedemptionAmount().String()}, nil
}

type clientParams struct {
	Client string `json:"client"`
}

func (s *Server) resolveClient(req *RPCRequest) ([20]byte, *RPCError) {
	var params clientParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return [20]byte{}, rpcErr
		}
	}
	if strings.TrimSpace(params.Client) == "" {
		return s.engine.Self(), nil
	}
	return parseAddress("client", params.Client)
}

func (s *Server) handleQueueHead(req *RPCRequest) (interface{}, *RPCError) {
	client, rpcErr := s.resolveClient(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return queueCursor(s.queue.Head(client)), nil
}

func (s *Server) handleQueueTail(req *RPCRequest) (interface{}, *RPCError) {
	client, rpcErr := s.resolveClient(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return queueCursor(s.queue.Tail(client)), nil
}

func (s *Server) handleQueueSize(req *RPCRequest) (interface{}, *RPCError) {
	client, rpcErr := s.resolveClient(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]int{"size": s.queue.Size(client)}, nil
}

type orderParams struct {
	OrderID uint64 `json:"orderId"`
}

type orderResult struct {
	OrderID   uint64 `json:"orderId"`
	Client    string `json:"client"`
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
	Reference string `json:"reference,omitempty"`
}

func (s *Server) handleQueueOrder(req *RPCRequest) (interface{}, *RPCError) {
	var params orderParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	order, err := s.queue.Get(params.OrderID)
	if err != nil {
		return nil, engineError(err)
	}
	result := orderResult{
		OrderID:   order.ID,
		Client:    addrHex(order.Client),
		Recipient: addrHex(order.Order.Recipient),
		Token:     addrHex(order.Order.Token),
		Amount:    order.Order.Amount.String(),
		State:     order.State.String(),
		Timestamp: order.Timestamp,
	}
	if ref, ok := order.Order.OrderReference(); ok {
		result.Reference = "0x" + hex.EncodeToString(ref[:])
	}
	return result, nil
}

type setPriceParams struct {
	Caller   string `json:"caller"`
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleSetPrice(req *RPCRequest, issuance bool) (interface{}, *RPCError) {
	var params setPriceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var err error
	if issuance {
		err = s.engine.SetIssuancePrice(caller, value, params.Decimals)
	} else {
		err = s.engine.SetRedemptionPrice(caller, value, params.Decimals)
	}
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type pricesParams struct {
	Decimals *uint8 `json:"decimals"`
}

func (s *Server) handlePrices(req *RPCRequest) (interface{}, *RPCError) {
	decimals := uint8(amounts.CanonicalDecimals)
	if len(req.Params) > 0 {
		var params pricesParams
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
		if params.Decimals != nil {
			decimals = *params.Decimals
		}
	}
	if decimals > amounts.MaxDecimals {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("decimals must not exceed %d", amounts.MaxDecimals)}
	}
	result := map[string]interface{}{}
	issuance, err := s.prices.IssuancePrice(decimals)
	if rpcErr := renderPrice(result, "issuance", issuance, err); rpcErr != nil {
		return nil, rpcErr
	}
	redemption, err := s.prices.RedemptionPrice(decimals)
	if rpcErr := renderPrice(result, "redemption", redemption, err); rpcErr != nil {
		return nil, rpcErr
	}
	return result, nil
}

// renderPrice records the price under key, keeping the key present but null
// when the oracle has no value yet.
func renderPrice(result map[string]interface{}, key string, value *big.Int, err error) *RPCError {
	switch {
	case err == nil:
		result[key] = value.String()
	case errors.Is(err, oracle.ErrPriceNotSet):
		result[key] = nil
	default:
		return engineError(err)
	}
	return nil
}

// queueCursor renders a queue pointer, folding the sentinel into an explicit
// empty marker.
func queueCursor(id uint64) map[string]interface{} {
	if id == payqueue.Sentinel {
		return map[string]interface{}{"empty": true}
	}
	return map[string]interface{}{"orderId": id}
}
