package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fundingvault/native/bank"
	"fundingvault/native/funding"
	"fundingvault/native/oracle"
	"fundingvault/native/payqueue"
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func hexAddr(addr [20]byte) string {
	return addrHex(addr)
}

var (
	engineAddr      = testAddr(0xE0)
	queueAddr       = testAddr(0xAB)
	sellerAddr      = testAddr(0x01)
	adminAddr       = testAddr(0x04)
	projectTreasury = testAddr(0x05)
	issuedToken     = testAddr(0x10)
	collateralToken = testAddr(0x11)
)

var oneE18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func newTestServer(t *testing.T, authToken string) (*Server, *bank.Bank) {
	t.Helper()
	ledger := bank.New()
	q := payqueue.NewQueue(queueAddr)
	q.SetTokenPort(ledger)
	p := payqueue.NewProcessor(q)
	p.SetTokenPort(ledger)

	eng := funding.NewEngine(engineAddr)
	eng.SetQueue(q)
	eng.SetProcessor(p)
	eng.SetTokenPort(ledger)
	eng.SetSupplyPort(ledger)
	eng.SetFeeRegistry(funding.NewStaticRegistry())
	prices := oracle.NewManual()
	require.NoError(t, eng.SetOracle(adminAddr, prices))
	eng.SetIssuedToken(issuedToken, 6)
	eng.SetCollateralToken(collateralToken, 6)
	eng.SetChainID(1)
	require.NoError(t, eng.SetProjectTreasury(adminAddr, projectTreasury))
	require.NoError(t, eng.Policy().SetProjectSellBps(100))
	require.NoError(t, prices.SetIssuancePrice(oneE18, 18))
	require.NoError(t, prices.SetRedemptionPrice(oneE18, 18))

	require.NoError(t, ledger.Mint(collateralToken, engineAddr, big.NewInt(10_000_000)))
	require.NoError(t, ledger.Approve(collateralToken, engineAddr, queueAddr, big.NewInt(1_000_000_000)))
	require.NoError(t, ledger.Mint(issuedToken, sellerAddr, big.NewInt(1_000_000)))

	return NewServer(eng, q, prices, nil, authToken), ledger
}

func rpcCall(t *testing.T, handler http.Handler, token, body string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestSellOverRPC(t *testing.T) {
	srv, ledger := newTestServer(t, "")
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"funding_sell","params":[{"caller":%q,"receiver":%q,"deposit":"1000000","minAmountOut":"1"}]}`,
		hexAddr(sellerAddr), hexAddr(sellerAddr))
	rec, resp := rpcCall(t, srv.Router(), "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	require.Equal(t, "990000", result["netCollateral"])
	require.Equal(t, "completed", result["orderState"])

	held, err := ledger.BalanceOf(collateralToken, sellerAddr)
	require.NoError(t, err)
	require.EqualValues(t, 990_000, held.Int64())
}

func TestQueueHeadEmptyMarker(t *testing.T) {
	srv, _ := newTestServer(t, "")
	_, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":2,"method":"queue_head"}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	require.Equal(t, true, result["empty"])
}

func TestQueueOrderRendering(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"funding_sell","params":[{"caller":%q,"receiver":%q,"deposit":"1000000","minAmountOut":"1"}]}`,
		hexAddr(sellerAddr), hexAddr(sellerAddr))
	_, resp := rpcCall(t, srv.Router(), "", body)
	require.Nil(t, resp.Error)

	_, orderResp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":4,"method":"queue_order","params":[{"orderId":1}]}`)
	require.Nil(t, orderResp.Error)
	result := orderResp.Result.(map[string]interface{})
	require.Equal(t, hexAddr(engineAddr), result["client"])
	require.Equal(t, hexAddr(collateralToken), result["token"])
	require.Equal(t, "990000", result["amount"])
	require.NotEmpty(t, result["reference"])
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":5,"method":"funding_fly"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":6,"method":"funding_sell","params":[{"caller":%q,"receiver":%q,"deposit":"1000000","minAmountOut":"1"}]}`,
		hexAddr(sellerAddr), hexAddr(sellerAddr))

	rec, resp := rpcCall(t, srv.Router(), "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = rpcCall(t, srv.Router(), "wrong", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = rpcCall(t, srv.Router(), "secret", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}

func TestReadsStayOpenWithAuthConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rec, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":7,"method":"queue_size"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}

func TestOraclePrices(t *testing.T) {
	srv, _ := newTestServer(t, "")
	_, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":8,"method":"oracle_prices","params":[{"decimals":6}]}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	require.Equal(t, "1000000", result["issuance"])
	require.Equal(t, "1000000", result["redemption"])
}

func TestOraclePricesRejectsExcessDecimals(t *testing.T) {
	srv, _ := newTestServer(t, "")
	_, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":13,"method":"oracle_prices","params":[{"decimals":19}]}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestOraclePricesMarksUnsetPrices(t *testing.T) {
	srv := NewServer(funding.NewEngine(engineAddr), payqueue.NewQueue(queueAddr), oracle.NewManual(), nil, "")
	_, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":14,"method":"oracle_prices"}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	value, ok := result["issuance"]
	require.True(t, ok)
	require.Nil(t, value)
	value, ok = result["redemption"]
	require.True(t, ok)
	require.Nil(t, value)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx, "127.0.0.1:0") }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop on context cancel")
	}
}

func TestSetPriceOverRPC(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":9,"method":"oracle_setRedemptionPrice","params":[{"caller":%q,"value":"2000000","decimals":6}]}`,
		hexAddr(adminAddr))
	_, resp := rpcCall(t, srv.Router(), "", body)
	require.Nil(t, resp.Error)

	_, read := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":10,"method":"oracle_prices","params":[{"decimals":6}]}`)
	result := read.Result.(map[string]interface{})
	require.Equal(t, "2000000", result["redemption"])
}

func TestInvalidAddressParam(t *testing.T) {
	srv, _ := newTestServer(t, "")
	_, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"2.0","id":11,"method":"funding_sell","params":[{"caller":"0x1234","receiver":"0x1234","deposit":"1","minAmountOut":"1"}]}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestUnsupportedVersionRejected(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec, resp := rpcCall(t, srv.Router(), "", `{"jsonrpc":"1.0","id":12,"method":"queue_size"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}
