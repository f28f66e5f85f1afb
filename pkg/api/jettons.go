package api

import (
	"net/http"

	"github.com/txsociety/ton-agent/pkg/core"
	"github.com/txsociety/ton-agent/pkg/jetton"
)

type NewMinter struct {
	Owner    string            `json:"owner,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

type MintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BurnRequest struct {
	Amount     string `json:"amount"`
	ResponseTo string `json:"response_to,omitempty"`
}

type AdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

type MetadataRequest struct {
	Metadata map[string]string `json:"metadata"`
}

// TransferRequest moves jettons of Master. Master has no default.
type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Master string `json:"master"`
}

type JettonDataPrintable struct {
	Master      string            `json:"master"`
	TotalSupply string            `json:"total_supply"`
	Mintable    bool              `json:"mintable"`
	Admin       string            `json:"admin,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func convertJettonData(d jetton.Data) JettonDataPrintable {
	res := JettonDataPrintable{
		Master:      d.Master.ToRaw(),
		TotalSupply: d.TotalSupply.String(),
		Mintable:    d.Mintable,
		Metadata:    d.Metadata,
	}
	if d.Admin != nil {
		res.Admin = d.Admin.ToRaw()
	}
	return res
}

func writeOperation(w http.ResponseWriter, res core.OperationResult, err error) {
	if err != nil {
		writeOperationError(w, res, err)
		return
	}
	writeJson(w, http.StatusOK, core.ConvertOperationToPrintable(res.Operation, res.Details))
}

func (h *Handler) deployMinter(w http.ResponseWriter, r *http.Request) {
	var data NewMinter
	if !decodeBody(w, r, &data) {
		return
	}
	owner, err := parseOptionalAccount(data.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner: "+err.Error())
		return
	}
	if len(data.Metadata) == 0 {
		writeError(w, http.StatusBadRequest, "metadata is required")
		return
	}
	res, err := h.jettons.DeployMinter(r.Context(), owner, data.Metadata)
	writeOperation(w, res, err)
}

func (h *Handler) getJettonData(w http.ResponseWriter, r *http.Request) {
	master, ok := pathAccount(w, r, "master")
	if !ok {
		return
	}
	d, err := h.jettons.JettonData(r.Context(), master)
	if err != nil {
		writeError(w, operationErrorStatus(err), err.Error())
		return
	}
	writeJson(w, http.StatusOK, convertJettonData(d))
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	master, ok := pathAccount(w, r, "master")
	if !ok {
		return
	}
	var data MintRequest
	if !decodeBody(w, r, &data) {
		return
	}
	to, err := parseOptionalAccount(data.To)
	if err != nil || to == nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	amount, err := parseAmount(data.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.jettons.Mint(r.Context(), master, *to, amount)
	writeOperation(w, res, err)
}

func (h *Handler) burn(w http.ResponseWriter, r *http.Request) {
	master, ok := pathAccount(w, r, "master")
	if !ok {
		return
	}
	var data BurnRequest
	if !decodeBody(w, r, &data) {
		return
	}
	amount, err := parseAmount(data.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	responseTo, err := parseOptionalAccount(data.ResponseTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid response_to: "+err.Error())
		return
	}
	res, err := h.jettons.Burn(r.Context(), master, amount, responseTo)
	writeOperation(w, res, err)
}

func (h *Handler) changeAdmin(w http.ResponseWriter, r *http.Request) {
	master, ok := pathAccount(w, r, "master")
	if !ok {
		return
	}
	var data AdminRequest
	if !decodeBody(w, r, &data) {
		return
	}
	admin, err := parseOptionalAccount(data.NewAdmin)
	if err != nil || admin == nil {
		writeError(w, http.StatusBadRequest, "invalid new_admin")
		return
	}
	res, err := h.jettons.ChangeAdmin(r.Context(), master, *admin)
	writeOperation(w, res, err)
}

func (h *Handler) updateMetadata(w http.ResponseWriter, r *http.Request) {
	master, ok := pathAccount(w, r, "master")
	if !ok {
		return
	}
	var data MetadataRequest
	if !decodeBody(w, r, &data) {
		return
	}
	res, err := h.jettons.UpdateMetadata(r.Context(), master, data.Metadata)
	writeOperation(w, res, err)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var data TransferRequest
	if !decodeBody(w, r, &data) {
		return
	}
	to, err := parseOptionalAccount(data.To)
	if err != nil || to == nil {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	amount, err := parseAmount(data.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	master, err := parseOptionalAccount(data.Master)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid master: "+err.Error())
		return
	}
	res, err := h.jettons.Transfer(r.Context(), amount, *to, master)
	writeOperation(w, res, err)
}
