package execution

import (
	"fmt"
	"time"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
)

type RunStatus string

const (
	RunStatusPendingSubmit RunStatus = "PENDING_SUBMIT"
	RunStatusSubmitted     RunStatus = "SUBMITTED"
	RunStatusConfirmed     RunStatus = "CONFIRMED"
	RunStatusFailed        RunStatus = "FAILED"
	RunStatusTimedOut      RunStatus = "TIMED_OUT"
)

var allowedTransitions = map[RunStatus][]RunStatus{
	RunStatusPendingSubmit: {RunStatusSubmitted, RunStatusFailed},
	RunStatusSubmitted:     {RunStatusConfirmed, RunStatusFailed, RunStatusTimedOut},
}

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusConfirmed || s == RunStatusFailed || s == RunStatusTimedOut
}

// Run tracks one submitted supertransaction through its lifecycle.
type Run struct {
	RunID              string    `json:"run_id"`
	Network            string    `json:"network"`
	Direction          string    `json:"direction"`
	SourceChainID      int64     `json:"source_chain_id"`
	DestinationChainID int64     `json:"destination_chain_id"`
	Status             RunStatus `json:"status"`
	Owner              string    `json:"owner,omitempty"`
	SmartAccount       string    `json:"smart_account,omitempty"`
	AmountBaseUnits    string    `json:"amount_base_units,omitempty"`
	FeeBaseUnits       string    `json:"fee_base_units,omitempty"`
	QuoteHash          string    `json:"quote_hash,omitempty"`
	TriggerTxHash      string    `json:"trigger_tx_hash,omitempty"`
	SupertxHash        string    `json:"supertx_hash,omitempty"`
	RelayStatus        string    `json:"relay_status,omitempty"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          string    `json:"created_at"`
	UpdatedAt          string    `json:"updated_at"`
}

func NewRun(runID, network, direction string, sourceChainID, destinationChainID int64) Run {
	now := time.Now().UTC().Format(time.RFC3339)
	return Run{
		RunID:              runID,
		Network:            network,
		Direction:          direction,
		SourceChainID:      sourceChainID,
		DestinationChainID: destinationChainID,
		Status:             RunStatusPendingSubmit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Transition moves the run to next. Illegal transitions are internal errors.
func (r *Run) Transition(next RunStatus) error {
	for _, allowed := range allowedTransitions[r.Status] {
		if allowed == next {
			r.Status = next
			r.Touch()
			return nil
		}
	}
	return clierr.New(clierr.CodeInternal, fmt.Sprintf("illegal run transition %s -> %s", r.Status, next))
}

// Fail records cause and moves the run to FAILED when that is still legal.
func (r *Run) Fail(cause error) {
	if cause != nil {
		r.Error = cause.Error()
	}
	if !r.Status.Terminal() {
		_ = r.Transition(RunStatusFailed)
	}
}

func (r *Run) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
