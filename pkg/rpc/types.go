package rpc

import "encoding/json"

// JSONRPCVersion is the JSON-RPC protocol version.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context carries the database sequence a query was answered at.
type Context struct {
	Sequence uint64 `json:"sequence"`
}

// ResponseWithContext wraps a result with its query context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfo is the JSON form of a ledger account.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// TokenAmount is the JSON form of a token balance.
type TokenAmount struct {
	Amount   string `json:"amount"` // base units, as a string
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"uiAmountString"`
}

// SaleStateInfo is the JSON form of a sale record.
type SaleStateInfo struct {
	Mint        string `json:"mint"`
	State       string `json:"state"`
	Custody     string `json:"custody"`
	Admin       string `json:"admin"`
	TotalTokens uint64 `json:"totalTokens"`
	TokensSold  uint64 `json:"tokensSold"`
	Remaining   uint64 `json:"remaining"`
}

// ReceiptInfo is the JSON form of a settlement receipt.
type ReceiptInfo struct {
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Mint      string `json:"mint"`
	Actor     string `json:"actor"`
	Tokens    uint64 `json:"tokens"`
	BaseUnits uint64 `json:"baseUnits"`
	Lamports  uint64 `json:"lamports"`
	Time      string `json:"time"` // RFC 3339
	Hash      string `json:"hash"`
}

// VersionInfo is the getVersion result.
type VersionInfo struct {
	Version string `json:"version"`
}
