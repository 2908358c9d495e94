// ABOUTME: JSON-over-HTTP ledger client implementing LedgerClient and TokenValidator.
// ABOUTME: Maps transport failures and status codes onto the ledger error classes.

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single ledger request.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPClient talks to the ledger service's JSON API:
//
//	GET  /wallets/{id}/balance  -> {"balance": <int>}
//	POST /payments              -> {"transactionId": <string>}
//	GET  /tokens/{id}           -> {"valid": <bool>}
//
// It satisfies both LedgerClient and TokenValidator.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var (
	_ LedgerClient   = (*HTTPClient)(nil)
	_ TokenValidator = (*HTTPClient)(nil)
)

// NewHTTPClient creates a ledger client for the service at baseURL.
// A non-positive timeout falls back to DefaultHTTPTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "ledger"),
	}
}

// Balance returns the wallet's balance in currency minor units.
func (c *HTTPClient) Balance(ctx context.Context, walletID string) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	path := fmt.Sprintf("/wallets/%s/balance", url.PathEscape(walletID))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Pay debits the wallet by amount and returns the resulting receipt.
func (c *HTTPClient) Pay(ctx context.Context, walletID string, amount int64) (*Receipt, error) {
	body, err := json.Marshal(map[string]any{"walletId": walletID, "amount": amount})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var out struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding payment response: %w", ErrUnavailable, err)
	}
	c.logger.Debug("payment submitted",
		"wallet_id", walletID,
		"amount", amount,
		"tx_id", out.TransactionID,
	)
	return &Receipt{
		TransactionID: out.TransactionID,
		WalletID:      walletID,
		Amount:        amount,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ValidateToken checks whether the token grants a payment bypass. An
// unknown token is a definitive "not valid", not an error.
func (c *HTTPClient) ValidateToken(ctx context.Context, tokenID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tokens/"+url.PathEscape(tokenID), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := statusError(resp); err != nil {
		return false, err
	}

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: decoding token response: %w", ErrUnavailable, err)
	}
	return out.Valid, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}
	return nil
}

// transportError classifies a failed round trip.
func transportError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// statusError maps HTTP status codes onto the ledger error classes.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrWalletUnknown
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, readBodyPrefix(resp.Body))
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
