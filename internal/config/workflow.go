package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/registry"
	"github.com/shopspring/decimal"
)

const (
	NetworkLocal   = registry.NetworkLocal
	NetworkMainnet = registry.NetworkMainnet
)

type Direction string

const (
	DirectionSameChain Direction = "same-chain"
	DirectionBaseToOp  Direction = "base-to-op"
	DirectionOpToBase  Direction = "op-to-base"
)

// Directions lists the recognized directions in prompt order.
var Directions = []Direction{DirectionSameChain, DirectionBaseToOp, DirectionOpToBase}

func ParseDirection(v string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(v))) {
	case DirectionSameChain, "same", "samechain":
		return DirectionSameChain, nil
	case DirectionBaseToOp:
		return DirectionBaseToOp, nil
	case DirectionOpToBase:
		return DirectionOpToBase, nil
	default:
		return "", fmt.Errorf("unsupported direction %q (expected %s|%s|%s)", v, DirectionSameChain, DirectionBaseToOp, DirectionOpToBase)
	}
}

func (d Direction) IsCrossChain() bool {
	return d == DirectionBaseToOp || d == DirectionOpToBase
}

// Chains returns the source and destination chain. Same-chain runs on Base.
func (d Direction) Chains() (id.Chain, id.Chain) {
	switch d {
	case DirectionOpToBase:
		return id.Optimism, id.Base
	case DirectionBaseToOp:
		return id.Base, id.Optimism
	default:
		return id.Base, id.Base
	}
}

// WorkflowOverrides holds optional string/number overrides of the profile defaults.
type WorkflowOverrides struct {
	FeeReserve         string
	MinAmount          string
	MaxAmount          string
	DefaultAmount      string
	QuoteWindowSeconds int64
	TransferRatio      string
}

// Merge returns o with every non-empty field of next applied on top.
func (o WorkflowOverrides) Merge(next WorkflowOverrides) WorkflowOverrides {
	if next.FeeReserve != "" {
		o.FeeReserve = next.FeeReserve
	}
	if next.MinAmount != "" {
		o.MinAmount = next.MinAmount
	}
	if next.MaxAmount != "" {
		o.MaxAmount = next.MaxAmount
	}
	if next.DefaultAmount != "" {
		o.DefaultAmount = next.DefaultAmount
	}
	if next.QuoteWindowSeconds > 0 {
		o.QuoteWindowSeconds = next.QuoteWindowSeconds
	}
	if next.TransferRatio != "" {
		o.TransferRatio = next.TransferRatio
	}
	return o
}

// Workflow is the single parameterized configuration every run executes with.
type Workflow struct {
	Network            string
	Direction          Direction
	Source             id.Chain
	Destination        id.Chain
	FeeReserve         decimal.Decimal
	MinAmount          decimal.Decimal
	MaxAmount          decimal.NullDecimal
	DefaultAmount      decimal.Decimal
	QuoteWindowSeconds int64
	TransferRatio      decimal.Decimal
	ConfirmRequired    bool
}

type profile struct {
	feeReserve    string
	minAmount     string
	defaultAmount string
	window        int64
}

var (
	localSameChain   = profile{feeReserve: "100", minAmount: "1", defaultAmount: "1000", window: 120}
	mainnetSameChain = profile{feeReserve: "0.1", minAmount: "0.001", defaultAmount: "0.03", window: 120}
	crossChain       = profile{feeReserve: "0.3", minAmount: "0.1", defaultAmount: "1", window: 300}
)

// DefaultTransferRatio is the share of the bridged amount sent on to the
// EOA on the destination chain.
var DefaultTransferRatio = decimal.RequireFromString("0.8")

func ResolveWorkflow(network string, direction Direction, overrides WorkflowOverrides) (Workflow, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network != NetworkLocal && network != NetworkMainnet {
		return Workflow{}, fmt.Errorf("network must be %s or %s", NetworkLocal, NetworkMainnet)
	}
	if _, err := ParseDirection(string(direction)); err != nil {
		return Workflow{}, err
	}

	p := crossChain
	if !direction.IsCrossChain() {
		p = mainnetSameChain
		if network == NetworkLocal {
			p = localSameChain
		}
	}
	src, dst := direction.Chains()
	wf := Workflow{
		Network:            network,
		Direction:          direction,
		Source:             src,
		Destination:        dst,
		FeeReserve:         decimal.RequireFromString(p.feeReserve),
		MinAmount:          decimal.RequireFromString(p.minAmount),
		DefaultAmount:      decimal.RequireFromString(p.defaultAmount),
		QuoteWindowSeconds: p.window,
		TransferRatio:      DefaultTransferRatio,
		ConfirmRequired:    network == NetworkMainnet,
	}

	var err error
	if wf.FeeReserve, err = overrideDecimal("fee reserve", overrides.FeeReserve, wf.FeeReserve); err != nil {
		return Workflow{}, err
	}
	if wf.MinAmount, err = overrideDecimal("min amount", overrides.MinAmount, wf.MinAmount); err != nil {
		return Workflow{}, err
	}
	if wf.DefaultAmount, err = overrideDecimal("default amount", overrides.DefaultAmount, wf.DefaultAmount); err != nil {
		return Workflow{}, err
	}
	if strings.TrimSpace(overrides.MaxAmount) != "" {
		capAmount, err := overrideDecimal("max amount", overrides.MaxAmount, decimal.Zero)
		if err != nil {
			return Workflow{}, err
		}
		wf.MaxAmount = decimal.NullDecimal{Decimal: capAmount, Valid: true}
	}
	if wf.TransferRatio, err = overrideDecimal("transfer ratio", overrides.TransferRatio, wf.TransferRatio); err != nil {
		return Workflow{}, err
	}
	if overrides.QuoteWindowSeconds > 0 {
		wf.QuoteWindowSeconds = overrides.QuoteWindowSeconds
	}

	if wf.FeeReserve.IsNegative() {
		return Workflow{}, fmt.Errorf("fee reserve must be >= 0")
	}
	if !wf.MinAmount.IsPositive() {
		return Workflow{}, fmt.Errorf("min amount must be > 0")
	}
	if !wf.TransferRatio.IsPositive() || wf.TransferRatio.GreaterThan(decimal.NewFromInt(1)) {
		return Workflow{}, fmt.Errorf("transfer ratio must be in (0, 1]")
	}
	if wf.QuoteWindowSeconds <= 0 {
		return Workflow{}, fmt.Errorf("quote window must be > 0 seconds")
	}
	if direction.IsCrossChain() {
		minBase := decimal.NewFromBigInt(id.ToBaseUnits(wf.MinAmount, id.USDCDecimals), 0)
		if minBase.Mul(wf.TransferRatio).Floor().LessThan(decimal.NewFromInt(1)) {
			return Workflow{}, fmt.Errorf("transfer ratio %s forwards nothing from the minimum amount %s USDC", wf.TransferRatio, wf.MinAmount)
		}
	}
	return wf, nil
}

// QuoteWindow is the quote validity window as a duration.
func (w Workflow) QuoteWindow() time.Duration {
	return time.Duration(w.QuoteWindowSeconds) * time.Second
}

// Chains lists the distinct chains a run touches, source first.
func (w Workflow) Chains() []id.Chain {
	if w.Source.EVMChainID == w.Destination.EVMChainID {
		return []id.Chain{w.Source}
	}
	return []id.Chain{w.Source, w.Destination}
}

func overrideDecimal(name, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

// RPCURL resolves the endpoint for a chain under the loaded settings.
func (s Settings) RPCURL(network string, chainID int64) (string, error) {
	return registry.ResolveRPCURL(s.RPCOverrides[chainID], network, s.RPCProvider, s.AlchemyAPIKey, chainID)
}

// RelayEndpoint resolves and validates the relay base URL.
func (s Settings) RelayEndpoint(network string) (string, error) {
	endpoint := strings.TrimSpace(s.RelayURL)
	if endpoint == "" {
		endpoint = registry.DefaultRelayURL(network)
	}
	if !registry.IsAllowedRelayURL(endpoint) {
		return "", fmt.Errorf("relay url %q must use https unless it points at localhost", endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
}
