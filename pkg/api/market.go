package api

import (
	"math/big"
	"net/http"

	"github.com/txsociety/ton-agent/pkg/core"
)

type BidRequest struct {
	Amount string `json:"amount"`
}

type ListingPrintable struct {
	Kind      string `json:"kind"`
	Address   string `json:"address"`
	NFT       string `json:"nft"`
	Owner     string `json:"owner,omitempty"`
	FullPrice string `json:"full_price,omitempty"`
	MinBid    string `json:"min_bid,omitempty"`
	LastBid   string `json:"last_bid,omitempty"`
	MaxBid    string `json:"max_bid,omitempty"`
	MinStep   string `json:"min_step,omitempty"`
	EndTime   uint32 `json:"end_time,omitempty"`
}

func convertListing(l core.Listing) ListingPrintable {
	res := ListingPrintable{
		Kind:    string(l.Kind),
		Address: l.Address.ToRaw(),
		NFT:     l.NFT.ToRaw(),
		EndTime: l.EndTime,
	}
	if l.Owner != nil {
		res.Owner = l.Owner.ToRaw()
	}
	res.FullPrice = amountString(l.FullPrice)
	res.MinBid = amountString(l.MinBid)
	res.LastBid = amountString(l.LastBid)
	res.MaxBid = amountString(l.MaxBid)
	res.MinStep = amountString(l.MinStep)
	return res
}

func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	nft, ok := pathAccount(w, r, "nft")
	if !ok {
		return
	}
	l, err := h.listings.ListingForNFT(r.Context(), nft)
	if err != nil {
		writeError(w, operationErrorStatus(err), err.Error())
		return
	}
	writeJson(w, http.StatusOK, convertListing(l))
}

func (h *Handler) buy(w http.ResponseWriter, r *http.Request) {
	nft, ok := pathAccount(w, r, "nft")
	if !ok {
		return
	}
	res, err := h.market.Buy(r.Context(), nft)
	writeOperation(w, res, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	nft, ok := pathAccount(w, r, "nft")
	if !ok {
		return
	}
	res, err := h.market.Cancel(r.Context(), nft)
	writeOperation(w, res, err)
}

func (h *Handler) bid(w http.ResponseWriter, r *http.Request) {
	nft, ok := pathAccount(w, r, "nft")
	if !ok {
		return
	}
	var data BidRequest
	if !decodeBody(w, r, &data) {
		return
	}
	amount, err := parseAmount(data.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.market.Bid(r.Context(), nft, amount)
	writeOperation(w, res, err)
}
