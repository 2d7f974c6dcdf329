package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/indexer"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	params  core.Params
}

// NewHandler creates an RPC Handler. params.ChainID is used to reject
// cross-chain replay transactions.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, params core.Params) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, params: params}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getGame":
		return h.getGame(req)

	case "getGameEvents":
		return h.getGameEvents(req)

	case "getOpenGames":
		return h.getOpenGames(req)

	case "getGamesByPlayer":
		return h.getGamesByPlayer(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getParams":
		return okResponse(req.ID, h.params)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func decodeParams(req Request, v any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

func lookupError(id any, err error) Response {
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return lookupError(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, BalanceResult{Address: params.Address, Balance: acc.Balance, Nonce: acc.Nonce})
}

type gameParams struct {
	GameID uint64 `json:"game_id"`
}

func (h *Handler) getGame(req Request) Response {
	var params gameParams
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.GameID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "game_id is required")
	}
	g, err := h.state.GetGame(params.GameID)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, g)
}

func (h *Handler) getGameEvents(req Request) Response {
	var params struct {
		GameID uint64 `json:"game_id"`
		From   uint64 `json:"from"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.GameID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "game_id is required")
	}
	log, err := h.indexer.GameEvents(params.GameID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	res := GameEventsResult{From: params.From, Events: []events.Event{}}
	if params.From < uint64(len(log)) {
		res.Events = log[params.From:]
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getOpenGames(req Request) Response {
	var params struct {
		Exclude string `json:"exclude"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	open, err := h.indexer.OpenGames()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	out := make([]events.GameCreated, 0, len(open))
	for _, g := range open {
		if params.Exclude != "" && g.Challenger == params.Exclude {
			continue
		}
		out = append(out, g)
	}
	return okResponse(req.ID, out)
}

func (h *Handler) getGamesByPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	ids, err := h.indexer.GamesByPlayer(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.indexer.Receipt(params.TxID)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.params.ChainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.params.ChainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	switch err := h.mempool.Add(&tx); {
	case err == nil, errors.Is(err, core.ErrTxKnown):
		// resubmitting a queued tx is not an error for the client
	case errors.Is(err, core.ErrMempoolFull):
		return errResponse(req.ID, CodeInternalError, err.Error())
	default:
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, SendTxResult{TxID: tx.ID})
}
