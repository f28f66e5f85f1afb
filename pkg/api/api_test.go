package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
)

const token = "secret"

func addr(label string) ton.AccountID {
	return ton.AccountID{Address: ton.Bits256(sha256.Sum256([]byte(label)))}
}

func submitted(kind core.OperationKind) core.OperationResult {
	now := time.Now()
	return core.OperationResult{Operation: core.Operation{
		ID:         core.NewOperationID(),
		Kind:       kind,
		Wallet:     addr("agent"),
		Seqno:      7,
		ValidUntil: now.Add(time.Minute),
		Status:     core.SubmittedOperationStatus,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
}

func confirmed(kind core.OperationKind) core.OperationResult {
	res := submitted(kind)
	res.Operation.Status = core.ConfirmedOperationStatus
	return res
}

type fakeJettons struct {
	mintTo     ton.AccountID
	mintAmount *big.Int
}

func (f *fakeJettons) DeployMinter(ctx context.Context, owner *ton.AccountID, metadata map[string]string) (core.OperationResult, error) {
	return confirmed(core.DeployMinterOperation), nil
}

func (f *fakeJettons) Mint(ctx context.Context, minter, to ton.AccountID, amount *big.Int) (core.OperationResult, error) {
	f.mintTo, f.mintAmount = to, amount
	return confirmed(core.MintOperation), nil
}

func (f *fakeJettons) Burn(ctx context.Context, minter ton.AccountID, amount *big.Int, responseTo *ton.AccountID) (core.OperationResult, error) {
	return confirmed(core.BurnOperation), nil
}

func (f *fakeJettons) ChangeAdmin(ctx context.Context, minter, newAdmin ton.AccountID) (core.OperationResult, error) {
	return confirmed(core.ChangeAdminOperation), nil
}

func (f *fakeJettons) UpdateMetadata(ctx context.Context, minter ton.AccountID, metadata map[string]string) (core.OperationResult, error) {
	return confirmed(core.UpdateMetadataOperation), nil
}

func (f *fakeJettons) Transfer(ctx context.Context, amount *big.Int, to ton.AccountID, master *ton.AccountID) (core.OperationResult, error) {
	if master == nil {
		return core.OperationResult{}, &core.OperationError{Op: string(core.TransferOperation), Cause: core.ErrMasterRequired}
	}
	return confirmed(core.TransferOperation), nil
}

func (f *fakeJettons) JettonData(ctx context.Context, master ton.AccountID) (jetton.Data, error) {
	admin := addr("admin")
	return jetton.Data{Master: master, TotalSupply: big.NewInt(1000), Mintable: true, Admin: &admin, Metadata: map[string]string{"symbol": "AGT"}}, nil
}

type fakeMarket struct{}

func (fakeMarket) Buy(ctx context.Context, nft ton.AccountID) (core.OperationResult, error) {
	panic("buy")
}

func (fakeMarket) Cancel(ctx context.Context, nft ton.AccountID) (core.OperationResult, error) {
	res := submitted(core.CancelOperation)
	return res, &core.OperationError{Op: string(core.CancelOperation), Cause: core.ErrSeqnoTimeout}
}

func (fakeMarket) Bid(ctx context.Context, nft ton.AccountID, amount *big.Int) (core.OperationResult, error) {
	return core.OperationResult{}, &core.OperationError{Op: string(core.BidOperation), Cause: fmt.Errorf("%w: below min bid", core.ErrBidTooLow)}
}

type fakeListings struct{}

func (fakeListings) ListingForNFT(ctx context.Context, nft ton.AccountID) (core.Listing, error) {
	return core.Listing{Kind: core.AuctionListing, Address: addr("sale"), NFT: nft, MinBid: big.NewInt(5), EndTime: 100}, nil
}

type fakeDex struct {
	deposit dex.DepositRequest
}

func (f *fakeDex) Backends() []string {
	return []string{"dedust"}
}

func (f *fakeDex) PoolState(ctx context.Context, backend string, pair dex.Pair) (dex.PoolState, error) {
	if backend != "dedust" {
		return 0, &core.OperationError{Op: "pool_state", Cause: core.ErrUnsupportedOperation}
	}
	return dex.PoolReady, nil
}

func (f *fakeDex) CreatePool(ctx context.Context, backend string, pair dex.Pair) (dex.Result, error) {
	return dex.Result{Pool: addr("pool"), Steps: []core.OperationResult{confirmed(core.CreatePoolOperation)}}, nil
}

func (f *fakeDex) Deposit(ctx context.Context, backend string, req dex.DepositRequest) (dex.Result, error) {
	f.deposit = req
	return dex.Result{Pool: addr("pool"), Steps: []core.OperationResult{confirmed(core.DepositOperation)}}, nil
}

func (f *fakeDex) Withdraw(ctx context.Context, backend string, pair dex.Pair, amount *big.Int) (core.OperationResult, error) {
	return core.OperationResult{}, &core.OperationError{Op: string(core.WithdrawOperation), Cause: core.ErrPoolNotFound}
}

func (f *fakeDex) ClaimFee(ctx context.Context, backend string, assets []core.Asset, native bool) ([]dex.ClaimResult, error) {
	failure := &core.OperationError{Op: string(core.ClaimFeeOperation), Cause: core.ExitCodeError(73)}
	return []dex.ClaimResult{
		{Asset: assets[0], Err: failure},
		{Asset: core.NativeAsset(), Result: confirmed(core.ClaimFeeOperation)},
	}, failure
}

type fakeStorage struct {
	ops []core.Operation
}

func (f *fakeStorage) GetOperation(ctx context.Context, id core.OperationID) (core.Operation, error) {
	for _, op := range f.ops {
		if op.ID == id {
			return op, nil
		}
	}
	return core.Operation{}, core.ErrNotFound
}

func (f *fakeStorage) GetOperations(ctx context.Context, after core.OperationID, limit int64) ([]core.Operation, error) {
	return f.ops, nil
}

type env struct {
	server  *httptest.Server
	jettons *fakeJettons
	dex     *fakeDex
}

func newEnv(t *testing.T, db storage) env {
	e := env{jettons: &fakeJettons{}, dex: &fakeDex{}}
	mux := http.NewServeMux()
	RegisterHandlers(mux, NewHandler(addr("agent"), db, e.jettons, fakeMarket{}, fakeListings{}, e.dex), token)
	e.server = httptest.NewServer(mux)
	t.Cleanup(e.server.Close)
	return e
}

func (e env) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAuthAndMethods(t *testing.T) {
	e := newEnv(t, nil)
	resp, err := http.Get(e.server.URL + "/v1/wallet")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, body := e.do(t, http.MethodGet, "/v1/wallet", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, addr("agent").ToRaw(), body["address"])

	status, _ = e.do(t, http.MethodGet, "/v1/jettons", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestJettonEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	master := addr("master").ToRaw()

	status, body := e.do(t, http.MethodPost, "/v1/jettons/"+master+"/mint", MintRequest{To: addr("alice").ToRaw(), Amount: "1000"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, addr("alice"), e.jettons.mintTo)
	assert.Equal(t, "1000", e.jettons.mintAmount.String())

	status, _ = e.do(t, http.MethodPost, "/v1/jettons/"+master+"/mint", MintRequest{To: addr("alice").ToRaw(), Amount: "-1"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = e.do(t, http.MethodPost, "/v1/transfers", TransferRequest{To: addr("bob").ToRaw(), Amount: "5"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], core.ErrMasterRequired.Error())

	status, body = e.do(t, http.MethodGet, "/v1/jettons/"+master, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000", body["total_supply"])
	assert.Equal(t, addr("admin").ToRaw(), body["admin"])

	status, _ = e.do(t, http.MethodPost, "/v1/jettons", NewMinter{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMarketEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	nft := addr("nft").ToRaw()

	status, body := e.do(t, http.MethodGet, "/v1/nfts/"+nft+"/listing", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "auction", body["kind"])
	assert.Equal(t, "5", body["min_bid"])
	assert.NotContains(t, body, "full_price")

	status, _ = e.do(t, http.MethodPost, "/v1/nfts/"+nft+"/bid", BidRequest{Amount: "1"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = e.do(t, http.MethodPost, "/v1/nfts/"+nft+"/cancel", nil)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	op, ok := body["operation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "submitted", op["status"])

	status, _ = e.do(t, http.MethodPost, "/v1/nfts/"+nft+"/buy", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestDexEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	jettonA := addr("jetton-a").ToRaw()

	status, body := e.do(t, http.MethodGet, "/v1/dex/dedust/pools/TON/"+jettonA, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["state"])

	status, _ = e.do(t, http.MethodGet, "/v1/dex/unknown/pools/TON/"+jettonA, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/v1/dex/dedust/pools/TON/native", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = e.do(t, http.MethodPost, "/v1/dex/dedust/deposit", DepositRequest{
		Assets:       []DepositAsset{{Asset: jettonA, Amount: "100"}},
		NativeAmount: "5000000000",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, addr("pool").ToRaw(), body["pool"])
	require.Len(t, e.dex.deposit.Assets, 1)
	assert.Equal(t, "100", e.dex.deposit.Assets[0].Amount.String())
	assert.Equal(t, "5000000000", e.dex.deposit.NativeAmount.String())
	assert.Nil(t, e.dex.deposit.MinLPOut)

	status, _ = e.do(t, http.MethodPost, "/v1/dex/dedust/withdraw", WithdrawRequest{Assets: [2]string{"TON", jettonA}})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = e.do(t, http.MethodPost, "/v1/dex/torch/claim", ClaimRequest{Assets: []string{jettonA, "TON"}})
	require.Equal(t, http.StatusOK, status)
	claims, ok := body["claims"].([]any)
	require.True(t, ok)
	require.Len(t, claims, 2)
	assert.Contains(t, claims[0].(map[string]any)["error"], "exit code 73")
	assert.NotContains(t, claims[1].(map[string]any), "error")
}

func TestOperationHistory(t *testing.T) {
	status, _ := newEnv(t, nil).do(t, http.MethodGet, "/v1/operations", nil)
	assert.Equal(t, http.StatusNotImplemented, status)

	op := confirmed(core.MintOperation).Operation
	e := newEnv(t, &fakeStorage{ops: []core.Operation{op}})

	status, body := e.do(t, http.MethodGet, "/v1/operations?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["operations"], 1)

	status, body = e.do(t, http.MethodGet, "/v1/operations/"+op.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mint", body["kind"])

	status, _ = e.do(t, http.MethodGet, "/v1/operations/"+core.NewOperationID().String(), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodGet, "/v1/operations?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOperationErrorStatus(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want int
	}{
		{core.ErrPoolNotFound, http.StatusNotFound},
		{&core.OperationError{Cause: core.ErrInvalidDepositConfiguration}, http.StatusBadRequest},
		{&core.OperationError{Cause: core.ErrSubmitFailed}, http.StatusBadGateway},
		{&core.OperationError{Cause: core.ExitCodeError(37)}, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tt.want, operationErrorStatus(tt.err), tt.err.Error())
	}
}

func TestBearerMatches(t *testing.T) {
	for _, tt := range []struct {
		name   string
		header string
		token  string
		want   bool
	}{
		{"match", "Bearer secret", "secret", true},
		{"lowercase scheme", "bearer secret", "secret", true},
		{"wrong token", "Bearer other", "secret", false},
		{"basic scheme", "Basic secret", "secret", false},
		{"no credential", "Bearer", "secret", false},
		{"empty credential with empty token", "Bearer ", "", false},
		{"missing header", "", "secret", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bearerMatches(tt.header, tt.token))
		})
	}
}

func TestMiddlewareChain(t *testing.T) {
	handler := withPanicGuard(requireAgentToken(token, allow(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	do := func(method, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/v1/transfers", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent token")

	rec = do(http.MethodGet, "Bearer "+token)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	rec = do(http.MethodPost, "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, core.ErrInternalServerError.Error(), body.Error)
}
