package ethereum

import (
	"encoding/binary"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// fakeNode is an in-process JSON-RPC node exposing just enough of the eth
// namespace for the gateway: eth_call dispatched through the contract ABI to
// per-method handlers, eth_sendTransaction recording, and instant receipts.
type fakeNode struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	accounts []common.Address
	balance  *big.Int
	reads    map[string]func(args []interface{}) []interface{}
	sent     []sentTx
	sendErr  string // eth_sendTransaction error message when non-empty
	revert   bool   // mined receipts come back with status 0
	txCount  uint64
}

type sentTx struct {
	Method string
	From   common.Address
	Value  *big.Int
	Args   []interface{}
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{
		t:       t,
		balance: big.NewInt(0),
		reads:   make(map[string]func(args []interface{}) []interface{}),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) URL() string { return n.srv.URL }

func (n *fakeNode) onRead(method string, fn func(args []interface{}) []interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reads[method] = fn
}

func (n *fakeNode) sentTxs() []sentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentTx, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, rpcErr := n.dispatch(req)

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		n.t.Errorf("encode rpc response: %v", err)
	}
}

type ethCallParams struct {
	From  *common.Address `json:"from"`
	To    common.Address  `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
}

func (n *fakeNode) dispatch(req rpcRequest) (interface{}, *rpcErrorBody) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_accounts":
		return n.accounts, nil

	case "eth_getBalance":
		return (*hexutil.Big)(n.balance), nil

	case "eth_call":
		var params ethCallParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			return nil, &rpcErrorBody{Code: -32602, Message: err.Error()}
		}
		method, err := contractABI.MethodById(params.Data[:4])
		if err != nil {
			return nil, &rpcErrorBody{Code: -32000, Message: err.Error()}
		}
		handler, ok := n.reads[method.Name]
		if !ok {
			n.t.Fatalf("no read handler registered for %s", method.Name)
		}
		args, err := method.Inputs.Unpack(params.Data[4:])
		if err != nil {
			return nil, &rpcErrorBody{Code: -32000, Message: err.Error()}
		}
		out, err := method.Outputs.Pack(handler(args)...)
		if err != nil {
			n.t.Fatalf("pack %s outputs: %v", method.Name, err)
		}
		return hexutil.Bytes(out), nil

	case "eth_sendTransaction":
		if n.sendErr != "" {
			return nil, &rpcErrorBody{Code: -32000, Message: n.sendErr}
		}
		var params ethCallParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			return nil, &rpcErrorBody{Code: -32602, Message: err.Error()}
		}
		method, err := contractABI.MethodById(params.Data[:4])
		if err != nil {
			return nil, &rpcErrorBody{Code: -32000, Message: err.Error()}
		}
		args, err := method.Inputs.Unpack(params.Data[4:])
		if err != nil {
			return nil, &rpcErrorBody{Code: -32000, Message: err.Error()}
		}
		tx := sentTx{Method: method.Name, Value: big.NewInt(0), Args: args}
		if params.From != nil {
			tx.From = *params.From
		}
		if params.Value != nil {
			tx.Value = (*big.Int)(params.Value)
		}
		n.sent = append(n.sent, tx)
		n.txCount++
		return n.txHash(n.txCount), nil

	case "eth_getTransactionReceipt":
		status := hexutil.Uint64(1)
		if n.revert {
			status = 0
		}
		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, &rpcErrorBody{Code: -32602, Message: err.Error()}
		}
		return map[string]interface{}{
			"transactionHash": hash,
			"status":          status,
			"gasUsed":         hexutil.Uint64(42000),
		}, nil

	default:
		n.t.Fatalf("unexpected rpc method %s", req.Method)
		return nil, nil
	}
}

func (n *fakeNode) txHash(nonce uint64) common.Hash {
	var hash common.Hash
	binary.BigEndian.PutUint64(hash[24:], nonce)
	return hash
}
