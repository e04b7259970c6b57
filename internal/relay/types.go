package relay

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ggonzalez94/meeflow/internal/execution/planner"
)

// AccountRef names the smart account used on one chain.
type AccountRef struct {
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
}

// QuoteRequest asks the relay to price a bundle inside a validity window.
type QuoteRequest struct {
	Trigger             planner.Trigger       `json:"trigger"`
	FeeToken            planner.FeeToken      `json:"feeToken"`
	Owner               string                `json:"ownerAddress"`
	Accounts            []AccountRef          `json:"accounts"`
	Instructions        []planner.Instruction `json:"instructions"`
	LowerBoundTimestamp int64                 `json:"lowerBoundTimestamp"`
	UpperBoundTimestamp int64                 `json:"upperBoundTimestamp"`
}

// NewQuoteRequest bounds bundle by [lower, lower+window]. The window is
// applied exactly.
func NewQuoteRequest(bundle planner.Bundle, accounts []AccountRef, lower time.Time, window time.Duration) QuoteRequest {
	lowerUnix := lower.Unix()
	return QuoteRequest{
		Trigger:             bundle.Trigger,
		FeeToken:            bundle.FeeToken,
		Owner:               bundle.Owner,
		Accounts:            accounts,
		Instructions:        bundle.Instructions,
		LowerBoundTimestamp: lowerUnix,
		UpperBoundTimestamp: lowerUnix + int64(window/time.Second),
	}
}

// PaymentInfo is the execution fee charged in the fee token.
type PaymentInfo struct {
	Token   string `json:"token"`
	ChainID string `json:"chainId"`
	// TokenAmount is the fee in token units, e.g. "0.012345".
	TokenAmount string `json:"tokenAmount"`
	// TokenWeiAmount is the fee in base units.
	TokenWeiAmount string `json:"tokenWeiAmount"`
	// TokenValue is the fee in USD.
	TokenValue string `json:"tokenValue"`
}

// Quote is a relay offer. Raw keeps the exact payload so it can be echoed
// back on execution.
type Quote struct {
	Hash                string          `json:"hash"`
	Node                string          `json:"node"`
	Commitment          string          `json:"commitment"`
	PaymentInfo         PaymentInfo     `json:"paymentInfo"`
	LowerBoundTimestamp int64           `json:"lowerBoundTimestamp"`
	UpperBoundTimestamp int64           `json:"upperBoundTimestamp"`
	Raw                 json.RawMessage `json:"-"`
}

func (q Quote) LowerBound() time.Time { return time.Unix(q.LowerBoundTimestamp, 0).UTC() }

func (q Quote) UpperBound() time.Time { return time.Unix(q.UpperBoundTimestamp, 0).UTC() }

// Expired reports whether now is past the quote's upper bound.
func (q Quote) Expired(now time.Time) bool {
	return now.Unix() > q.UpperBoundTimestamp
}

// TriggerRef identifies the mined trigger transaction.
type TriggerRef struct {
	ChainID int64  `json:"chainId"`
	TxHash  string `json:"hash"`
}

type executeRequest struct {
	Quote   json.RawMessage `json:"quote"`
	Trigger TriggerRef      `json:"triggerTransaction"`
}

type executeResponse struct {
	Hash string `json:"hash"`
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

type UserOp struct {
	ChainID         string `json:"chainId,omitempty"`
	ExecutionStatus string `json:"executionStatus"`
	ExecutionError  string `json:"executionError,omitempty"`
}

// Receipt is the relay's view of a supertransaction.
type Receipt struct {
	Hash              string   `json:"hash"`
	TransactionStatus string   `json:"transactionStatus"`
	UserOps           []UserOp `json:"userOps"`
}

// Outcome maps the relay status onto confirmed, failed or pending. Any failed
// user operation fails the whole supertransaction.
func (r Receipt) Outcome() Outcome {
	for _, op := range r.UserOps {
		if classify(op.ExecutionStatus) == OutcomeFailed {
			return OutcomeFailed
		}
	}
	return classify(r.TransactionStatus)
}

func (r Receipt) Terminal() bool { return r.Outcome() != OutcomePending }

// UserOpStatuses lists the per-operation statuses in order.
func (r Receipt) UserOpStatuses() []string {
	out := make([]string, 0, len(r.UserOps))
	for _, op := range r.UserOps {
		out = append(out, op.ExecutionStatus)
	}
	return out
}

func classify(status string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "MINED_SUCCESS":
		return OutcomeConfirmed
	case "FAILED", "MINED_FAIL", "ERROR":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
