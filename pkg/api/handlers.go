package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/ton-agent/pkg/core"
)

type Handler struct {
	wallet   ton.AccountID
	db       storage
	jettons  jettons
	market   market
	listings listings
	dex      liquidity
}

// NewHandler accepts a nil db, operation history is unavailable then.
func NewHandler(wallet ton.AccountID, db storage, j jettons, m market, l listings, d liquidity) *Handler {
	return &Handler{
		wallet:   wallet,
		db:       db,
		jettons:  j,
		market:   m,
		listings: l,
		dex:      d,
	}
}

type errorResponse struct {
	Error     string                   `json:"error"`
	Operation *core.OperationPrintable `json:"operation,omitempty"`
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	res := struct {
		Address string   `json:"address"`
		Dex     []string `json:"dex"`
	}{
		Address: h.wallet.ToRaw(),
		Dex:     h.dex.Backends(),
	}
	writeJson(w, http.StatusOK, res)
}

func (h *Handler) getOperation(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusNotImplemented, "operation journal is not configured")
		return
	}
	id, err := core.ParseOperationID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	op, err := h.db.GetOperation(r.Context(), id)
	if err != nil && errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		slog.Error("get operation", "id", id.String(), "error", err)
		writeError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
		return
	}
	writeJson(w, http.StatusOK, core.ConvertOperationToPrintable(op, nil))
}

func (h *Handler) getOperationHistory(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusNotImplemented, "operation journal is not configured")
		return
	}
	var (
		limit int64            = 20
		after core.OperationID // empty ID
		err   error
	)
	if limitQuery := r.URL.Query().Get("limit"); len(limitQuery) > 0 {
		limit, err = strconv.ParseInt(limitQuery, 10, 64)
		if err != nil || limit <= 0 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if afterQuery := r.URL.Query().Get("after"); len(afterQuery) > 0 {
		after, err = core.ParseOperationID(afterQuery)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid operation ID: "+err.Error())
			return
		}
	}
	ops, err := h.db.GetOperations(r.Context(), after, limit)
	if err != nil {
		slog.Error("get operation history", "error", err)
		writeError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
		return
	}
	res := struct {
		Operations []core.OperationPrintable `json:"operations"`
	}{
		Operations: make([]core.OperationPrintable, 0, len(ops)),
	}
	for _, op := range ops {
		res.Operations = append(res.Operations, core.ConvertOperationToPrintable(op, nil))
	}
	writeJson(w, http.StatusOK, res)
}

func RegisterHandlers(mux *http.ServeMux, h *Handler, token string) {
	if token == "" {
		slog.Warn("api token is not set, every request will be rejected")
	}
	get := func(pattern string, next http.HandlerFunc) {
		mux.HandleFunc(pattern, withPanicGuard(requireAgentToken(token, allow(http.MethodGet, next))))
	}
	post := func(pattern string, next http.HandlerFunc) {
		mux.HandleFunc(pattern, withPanicGuard(requireAgentToken(token, allow(http.MethodPost, next))))
	}
	get("/v1/wallet", h.getWallet)
	get("/v1/operations", h.getOperationHistory)
	get("/v1/operations/{id}", h.getOperation)

	post("/v1/jettons", h.deployMinter)
	get("/v1/jettons/{master}", h.getJettonData)
	post("/v1/jettons/{master}/mint", h.mint)
	post("/v1/jettons/{master}/burn", h.burn)
	post("/v1/jettons/{master}/admin", h.changeAdmin)
	post("/v1/jettons/{master}/metadata", h.updateMetadata)
	post("/v1/transfers", h.transfer)

	get("/v1/nfts/{nft}/listing", h.getListing)
	post("/v1/nfts/{nft}/buy", h.buy)
	post("/v1/nfts/{nft}/cancel", h.cancel)
	post("/v1/nfts/{nft}/bid", h.bid)

	post("/v1/dex/{backend}/pools", h.createPool)
	get("/v1/dex/{backend}/pools/{first}/{second}", h.getPoolState)
	post("/v1/dex/{backend}/deposit", h.deposit)
	post("/v1/dex/{backend}/withdraw", h.withdraw)
	post("/v1/dex/{backend}/claim", h.claimFee)
}

// writeOperationError maps the cause of a failed operation to a status code. The journal
// record is attached once the transfer has been submitted.
func writeOperationError(w http.ResponseWriter, res core.OperationResult, err error) {
	body := errorResponse{Error: err.Error()}
	if res.Operation.Status != "" {
		op := core.ConvertOperationToPrintable(res.Operation, res.Details)
		body.Operation = &op
	}
	writeJson(w, operationErrorStatus(err), body)
}

func operationErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEncoding),
		errors.Is(err, core.ErrInvalidDepositConfiguration),
		errors.Is(err, core.ErrUnsupportedOperation),
		errors.Is(err, core.ErrMasterRequired),
		errors.Is(err, core.ErrWrongListingKind),
		errors.Is(err, core.ErrAuctionEnded),
		errors.Is(err, core.ErrBidTooLow):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSeqnoTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrSubmitFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrMethodUnavailable),
		errors.Is(err, core.ErrUnrecognizedListing),
		core.ClassifyExecutionError(err) != nil:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "empty body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	return true
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("can not parse amount string")
	}
	if amount.Sign() != 1 {
		return nil, errors.New("amount must be positive integer")
	}
	return amount, nil
}

func parseOptionalAccount(s string) (*ton.AccountID, error) {
	if s == "" {
		return nil, nil
	}
	a, err := ton.ParseAccountID(s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func pathAccount(w http.ResponseWriter, r *http.Request, name string) (ton.AccountID, bool) {
	a, err := ton.ParseAccountID(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+err.Error())
		return ton.AccountID{}, false
	}
	return a, true
}

func writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
