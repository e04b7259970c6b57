package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/httpx"
	"github.com/sirupsen/logrus"
)

const apiKeyHeader = "X-API-Key"

// Client talks to one relay (MEE node) endpoint.
type Client struct {
	baseURL      string
	http         *httpx.Client
	apiKey       string
	pollInterval time.Duration
	log          logrus.FieldLogger
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(baseURL string, httpClient *httpx.Client, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:         httpClient,
		pollInterval: 2 * time.Second,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("relay", c.baseURL)
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// GetQuote prices req. The returned bounds must match the requested window.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "encode quote request", err)
	}
	var raw json.RawMessage
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/quote", body, c.headers(), &raw); err != nil {
		return Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeUnavailable, "decode quote", err)
	}
	quote.Raw = raw
	if strings.TrimSpace(quote.Hash) == "" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "relay returned a quote without hash")
	}
	if quote.LowerBoundTimestamp == 0 && quote.UpperBoundTimestamp == 0 {
		quote.LowerBoundTimestamp = req.LowerBoundTimestamp
		quote.UpperBoundTimestamp = req.UpperBoundTimestamp
	}
	if quote.LowerBoundTimestamp != req.LowerBoundTimestamp || quote.UpperBoundTimestamp != req.UpperBoundTimestamp {
		return Quote{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf(
			"relay changed the quote window to [%d, %d], requested [%d, %d]",
			quote.LowerBoundTimestamp, quote.UpperBoundTimestamp, req.LowerBoundTimestamp, req.UpperBoundTimestamp,
		))
	}
	c.log.WithFields(logrus.Fields{
		"quote_hash": quote.Hash,
		"fee":        quote.PaymentInfo.TokenAmount,
	}).Debug("quote received")
	return quote, nil
}

// Execute submits a quote whose trigger transaction has been mined and
// returns the supertransaction hash.
func (c *Client) Execute(ctx context.Context, quote Quote, trigger TriggerRef) (string, error) {
	payload := quote.Raw
	if len(payload) == 0 {
		encoded, err := json.Marshal(quote)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeInternal, "encode quote", err)
		}
		payload = encoded
	}
	body, err := json.Marshal(executeRequest{Quote: payload, Trigger: trigger})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode execute request", err)
	}
	var resp executeResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/exec", body, c.headers(), &resp); err != nil {
		return "", fmt.Errorf("execute quote: %w", err)
	}
	if strings.TrimSpace(resp.Hash) == "" {
		return "", clierr.New(clierr.CodeUnavailable, "relay accepted the quote without returning a hash")
	}
	c.log.WithField("hash", resp.Hash).Info("supertransaction submitted")
	return resp.Hash, nil
}

// Status performs a single explorer lookup.
func (c *Client) Status(ctx context.Context, hash string) (Receipt, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return Receipt{}, clierr.New(clierr.CodeUsage, "supertransaction hash is required")
	}
	var receipt Receipt
	endpoint := c.baseURL + "/explorer/" + url.PathEscape(hash)
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, c.headers(), &receipt); err != nil {
		return Receipt{}, fmt.Errorf("fetch supertransaction status: %w", err)
	}
	if receipt.Hash == "" {
		receipt.Hash = hash
	}
	return receipt, nil
}

// WaitForReceipt polls Status until the supertransaction is terminal or ctx
// ends. A deadline is reported as CodeTimeout; the remote operation is not
// cancelled. A failed lookup ends the wait with the lookup error. observe, when
// set, sees every non-terminal receipt.
func (c *Client) WaitForReceipt(ctx context.Context, hash string, observe func(Receipt)) (Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	var last Receipt
	for {
		receipt, err := c.Status(ctx, hash)
		if err != nil && ctx.Err() == nil {
			return last, err
		}
		if err == nil {
			last = receipt
			if receipt.Terminal() {
				return receipt, nil
			}
			c.log.WithField("status", receipt.TransactionStatus).Debug("supertransaction pending")
			if observe != nil {
				observe(receipt)
			}
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return last, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for supertransaction", ctx.Err())
			}
			return last, clierr.Wrap(clierr.CodeInternal, "wait cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{apiKeyHeader: c.apiKey}
}
