package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/dex"
)

type PoolRequest struct {
	Assets [2]string `json:"assets"`
}

type DepositAsset struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type DepositRequest struct {
	Assets       []DepositAsset `json:"assets"`
	NativeAmount string         `json:"native_amount,omitempty"`
	MinLPOut     string         `json:"min_lp_out,omitempty"`
}

// WithdrawRequest burns Amount liquidity tokens, or all of them when Amount is empty.
type WithdrawRequest struct {
	Assets [2]string `json:"assets"`
	Amount string    `json:"amount,omitempty"`
}

type ClaimRequest struct {
	Assets []string `json:"assets"`
	Native bool     `json:"native"`
}

type StepsPrintable struct {
	Pool  string                    `json:"pool,omitempty"`
	Steps []core.OperationPrintable `json:"steps"`
	Error string                    `json:"error,omitempty"`
}

type ClaimPrintable struct {
	Asset     string                   `json:"asset"`
	Operation *core.OperationPrintable `json:"operation,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func convertResult(res dex.Result, err error) StepsPrintable {
	out := StepsPrintable{Steps: make([]core.OperationPrintable, 0, len(res.Steps))}
	if res.Pool != (ton.AccountID{}) {
		out.Pool = res.Pool.ToRaw()
	}
	for _, s := range res.Steps {
		if s.Operation.Status == "" {
			continue
		}
		out.Steps = append(out.Steps, core.ConvertOperationToPrintable(s.Operation, s.Details))
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func writeResult(w http.ResponseWriter, res dex.Result, err error) {
	status := http.StatusOK
	if err != nil {
		status = operationErrorStatus(err)
	}
	writeJson(w, status, convertResult(res, err))
}

func parsePair(first, second string) (dex.Pair, error) {
	a, err := core.ParseAsset(first)
	if err != nil {
		return dex.Pair{}, err
	}
	b, err := core.ParseAsset(second)
	if err != nil {
		return dex.Pair{}, err
	}
	return dex.NewPair(a, b)
}

// parseOptionalAmount allows zero, a deposit may leave one side empty.
func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func (h *Handler) getPoolState(w http.ResponseWriter, r *http.Request) {
	pair, err := parsePair(r.PathValue("first"), r.PathValue("second"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.dex.PoolState(r.Context(), r.PathValue("backend"), pair)
	if err != nil {
		writeError(w, operationErrorStatus(err), err.Error())
		return
	}
	res := struct {
		Pair  string `json:"pair"`
		State string `json:"state"`
	}{
		Pair:  pair.String(),
		State: state.String(),
	}
	writeJson(w, http.StatusOK, res)
}

func (h *Handler) createPool(w http.ResponseWriter, r *http.Request) {
	var data PoolRequest
	if !decodeBody(w, r, &data) {
		return
	}
	pair, err := parsePair(data.Assets[0], data.Assets[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.dex.CreatePool(r.Context(), r.PathValue("backend"), pair)
	writeResult(w, res, err)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var data DepositRequest
	if !decodeBody(w, r, &data) {
		return
	}
	req := dex.DepositRequest{Assets: make([]core.AssetAmount, 0, len(data.Assets))}
	for _, a := range data.Assets {
		asset, err := core.ParseAsset(a.Asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount, err := parseOptionalAmount(a.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Assets = append(req.Assets, core.AssetAmount{Asset: asset, Amount: amount})
	}
	var err error
	if req.NativeAmount, err = parseOptionalAmount(data.NativeAmount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MinLPOut, err = parseOptionalAmount(data.MinLPOut); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.dex.Deposit(r.Context(), r.PathValue("backend"), req)
	writeResult(w, res, err)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var data WithdrawRequest
	if !decodeBody(w, r, &data) {
		return
	}
	pair, err := parsePair(data.Assets[0], data.Assets[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var amount *big.Int
	if data.Amount != "" {
		if amount, err = parseAmount(data.Amount); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	res, err := h.dex.Withdraw(r.Context(), r.PathValue("backend"), pair, amount)
	writeOperation(w, res, err)
}

// claimFee answers 200 when at least one claim went through and lists every failure.
func (h *Handler) claimFee(w http.ResponseWriter, r *http.Request) {
	var data ClaimRequest
	if !decodeBody(w, r, &data) {
		return
	}
	assets := make([]core.Asset, 0, len(data.Assets))
	for _, s := range data.Assets {
		a, err := core.ParseAsset(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if a.IsNative() {
			data.Native = true
			continue
		}
		assets = append(assets, a)
	}
	results, err := h.dex.ClaimFee(r.Context(), r.PathValue("backend"), assets, data.Native)
	if len(results) == 0 {
		if err == nil {
			err = errors.New("no claims were made")
		}
		writeError(w, operationErrorStatus(err), err.Error())
		return
	}
	status := http.StatusOK
	out := struct {
		Claims []ClaimPrintable `json:"claims"`
	}{
		Claims: make([]ClaimPrintable, 0, len(results)),
	}
	succeeded := false
	for _, c := range results {
		cp := ClaimPrintable{Asset: c.Asset.String()}
		if c.Result.Operation.Status != "" {
			op := core.ConvertOperationToPrintable(c.Result.Operation, c.Result.Details)
			cp.Operation = &op
		}
		if c.Err != nil {
			cp.Error = c.Err.Error()
		} else {
			succeeded = true
		}
		out.Claims = append(out.Claims, cp)
	}
	if !succeeded {
		status = operationErrorStatus(results[0].Err)
	}
	writeJson(w, status, out)
}
