// Package chaintest serves a minimal JSON-RPC node for tests.
package chaintest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers an eth_call for a single contract method. args is the
// calldata without the selector.
type CallHandler func(args []byte) ([]byte, error)

// Node is a scripted chain. Register handlers before the first request.
type Node struct {
	ChainID   int64
	BlockTime uint64
	BaseFee   *big.Int
	// ReceiptStatus is returned for every sent transaction; nil means pending forever.
	ReceiptStatus *uint64

	mu      sync.Mutex
	calls   map[string]CallHandler
	code    map[common.Address][]byte
	sent    []*types.Transaction
	methods []string

	server *httptest.Server
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

// NewNode starts a node serving chainID. The server is closed on test cleanup.
func NewNode(t *testing.T, chainID int64) *Node {
	t.Helper()
	success := types.ReceiptStatusSuccessful
	n := &Node{
		ChainID:       chainID,
		BlockTime:     1_700_000_000,
		BaseFee:       big.NewInt(1_000_000_000),
		ReceiptStatus: &success,
		calls:         map[string]CallHandler{},
		code:          map[common.Address][]byte{},
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

func (n *Node) URL() string { return n.server.URL }

// HandleCall registers a handler for method of contractABI at target.
func (n *Node) HandleCall(target common.Address, contractABI abi.ABI, method string, h CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[callKey(target, contractABI.Methods[method].ID)] = h
}

// Returns registers a handler that always packs the given outputs.
func (n *Node) Returns(target common.Address, contractABI abi.ABI, method string, outputs ...any) {
	packed, err := contractABI.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("pack %s outputs: %v", method, err))
	}
	n.HandleCall(target, contractABI, method, func([]byte) ([]byte, error) { return packed, nil })
}

// SetCode marks addr as a deployed contract.
func (n *Node) SetCode(addr common.Address, code []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code[addr] = code
}

// Sent returns the raw transactions broadcast to the node.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

// Methods returns every JSON-RPC method received, in order.
func (n *Node) Methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.methods...)
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.methods = append(n.methods, req.Method)
	n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		writeResult(w, req.ID, hexutil.EncodeUint64(uint64(n.ChainID)))
	case "eth_blockNumber":
		writeResult(w, req.ID, "0x64")
	case "eth_getBlockByNumber":
		writeResult(w, req.ID, n.header())
	case "eth_getCode":
		var addr common.Address
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &addr)
		}
		n.mu.Lock()
		code := n.code[addr]
		n.mu.Unlock()
		writeResult(w, req.ID, hexutil.Encode(code))
	case "eth_call":
		n.serveCall(w, req)
	case "eth_estimateGas":
		writeResult(w, req.ID, "0x15f90")
	case "eth_maxPriorityFeePerGas":
		writeResult(w, req.ID, "0x3b9aca00")
	case "eth_gasPrice":
		writeResult(w, req.ID, "0x77359400")
	case "eth_getTransactionCount":
		writeResult(w, req.ID, "0x7")
	case "eth_sendRawTransaction":
		n.serveSend(w, req)
	case "eth_getTransactionReceipt":
		n.serveReceipt(w, req)
	default:
		writeError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
	}
}

func (n *Node) serveCall(w http.ResponseWriter, req rpcRequest) {
	if len(req.Params) == 0 {
		writeError(w, req.ID, -32602, "missing call args")
		return
	}
	var args callArgs
	if err := json.Unmarshal(req.Params[0], &args); err != nil || args.To == nil {
		writeError(w, req.ID, -32602, "invalid call args")
		return
	}
	data := []byte(args.Input)
	if len(data) == 0 {
		data = args.Data
	}
	if len(data) < 4 {
		writeError(w, req.ID, -32602, "calldata too short")
		return
	}
	n.mu.Lock()
	h, ok := n.calls[callKey(*args.To, data[:4])]
	n.mu.Unlock()
	if !ok {
		writeError(w, req.ID, 3, fmt.Sprintf("execution reverted: no handler for %s %x", args.To.Hex(), data[:4]))
		return
	}
	out, err := h(data[4:])
	if err != nil {
		writeError(w, req.ID, 3, "execution reverted: "+err.Error())
		return
	}
	writeResult(w, req.ID, "0x"+hex.EncodeToString(out))
}

func (n *Node) serveSend(w http.ResponseWriter, req rpcRequest) {
	var raw hexutil.Bytes
	if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &raw) != nil {
		writeError(w, req.ID, -32602, "invalid raw transaction")
		return
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		writeError(w, req.ID, -32602, err.Error())
		return
	}
	n.mu.Lock()
	n.sent = append(n.sent, tx)
	n.mu.Unlock()
	writeResult(w, req.ID, tx.Hash().Hex())
}

func (n *Node) serveReceipt(w http.ResponseWriter, req rpcRequest) {
	var hash common.Hash
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &hash)
	}
	n.mu.Lock()
	known := false
	for _, tx := range n.sent {
		if tx.Hash() == hash {
			known = true
			break
		}
	}
	status := n.ReceiptStatus
	n.mu.Unlock()
	if !known || status == nil {
		writeRawResult(w, req.ID, "null")
		return
	}
	writeResult(w, req.ID, map[string]any{
		"transactionHash":   hash.Hex(),
		"blockHash":         common.Hash{0x01}.Hex(),
		"blockNumber":       "0x65",
		"transactionIndex":  "0x0",
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"logsBloom":         hexutil.Encode(make([]byte, types.BloomByteLength)),
		"logs":              []any{},
		"status":            hexutil.EncodeUint64(*status),
		"type":              "0x2",
	})
}

func (n *Node) header() map[string]any {
	zero := common.Hash{}.Hex()
	return map[string]any{
		"parentHash":       zero,
		"sha3Uncles":       types.EmptyUncleHash.Hex(),
		"miner":            common.Address{}.Hex(),
		"stateRoot":        zero,
		"transactionsRoot": types.EmptyTxsHash.Hex(),
		"receiptsRoot":     types.EmptyReceiptsHash.Hex(),
		"logsBloom":        hexutil.Encode(make([]byte, types.BloomByteLength)),
		"difficulty":       "0x0",
		"number":           "0x64",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        hexutil.EncodeUint64(n.BlockTime),
		"extraData":        "0x",
		"baseFeePerGas":    hexutil.EncodeBig(n.BaseFee),
		"mixHash":          zero,
		"nonce":            "0x0000000000000000",
		"hash":             common.Hash{0x02}.Hex(),
	}
}

func callKey(target common.Address, selector []byte) string {
	return strings.ToLower(target.Hex()) + ":" + hex.EncodeToString(selector)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	buf, err := json.Marshal(result)
	if err != nil {
		writeError(w, id, -32603, err.Error())
		return
	}
	writeRawResult(w, id, string(buf))
}

func writeRawResult(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, rawIDOrDefault(id), result)
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}
