package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Network   string    `json:"network,omitempty"`
}

type SmartAccountInfo struct {
	ChainID  string `json:"chain_id"`
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Deployed bool   `json:"deployed"`
}

type AccountInfo struct {
	EOA           string             `json:"eoa"`
	SmartAccounts []SmartAccountInfo `json:"smart_accounts"`
	Balances      []BalanceEntry     `json:"balances,omitempty"`
}

type BalanceEntry struct {
	ChainID string `json:"chain_id"`
	Chain   string `json:"chain"`
	Role    string `json:"role"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type BalanceDelta struct {
	ChainID string `json:"chain_id"`
	Chain   string `json:"chain"`
	Role    string `json:"role"`
	Token   string `json:"token"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Delta   string `json:"delta"`
}

// RunSummary is the structured result of one workflow run.
type RunSummary struct {
	RunID           string         `json:"run_id"`
	Network         string         `json:"network"`
	Direction       string         `json:"direction"`
	SourceChain     string         `json:"source_chain"`
	DestChain       string         `json:"destination_chain"`
	Amount          string         `json:"amount,omitempty"`
	AmountBaseUnits string         `json:"amount_base_units,omitempty"`
	Fee             string         `json:"fee,omitempty"`
	QuoteHash       string         `json:"quote_hash,omitempty"`
	TriggerTxHash   string         `json:"trigger_tx_hash,omitempty"`
	Hash            string         `json:"hash,omitempty"`
	ExplorerURL     string         `json:"explorer_url,omitempty"`
	Status          string         `json:"status"`
	RelayStatus     string         `json:"relay_status,omitempty"`
	Declined        bool           `json:"declined"`
	Deltas          []BalanceDelta `json:"deltas,omitempty"`
	Message         string         `json:"message,omitempty"`
}

type KeygenResult struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

type SupertxStatus struct {
	Hash        string   `json:"hash"`
	Status      string   `json:"status"`
	Terminal    bool     `json:"terminal"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
	UserOps     []string `json:"user_op_statuses,omitempty"`
}
