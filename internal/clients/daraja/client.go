// Package daraja is the M-Pesa Daraja gateway client: credential exchange,
// STK push initiation, C2B/pull registration and pull queries.
package daraja

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jowabu/plotpay/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client talks to the Daraja gateway
type Client struct {
	cfg    config.DarajaConfig
	client *http.Client
	log    zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClient creates a new Daraja gateway client
func NewClient(cfg config.DarajaConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("client", "daraja").Logger(),
		now:    time.Now,
	}
}

// Token exchanges the consumer credentials for a bearer token. Tokens are
// cached until shortly before expiry; the gateway rate-limits the oauth
// endpoint aggressively.
func (c *Client) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequest(http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned status %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("gateway returned an empty access token")
	}

	ttl := 3600
	if parsed, err := strconv.Atoi(token.ExpiresIn); err == nil && parsed > 0 {
		ttl = parsed
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttl-60) * time.Second)

	c.log.Debug().Int("ttl_seconds", ttl).Msg("Gateway token refreshed")
	return c.accessToken, nil
}

// STKPush asks the gateway to prompt the payer's device for amount.
func (c *Client) STKPush(phone string, amount decimal.Decimal) (*STKPushResponse, error) {
	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerBuyGoodsOnline",
		"Amount":            amount.String(),
		"PartyA":            phone,
		"PartyB":            c.cfg.PartyB,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  c.cfg.AccountReference,
		"TransactionDesc":   "Plot fee payment",
	}

	var response STKPushResponse
	if err := c.post("/mpesa/stkpush/v1/processrequest", payload, &response); err != nil {
		return nil, fmt.Errorf("stk push failed: %w", err)
	}

	c.log.Info().
		Str("checkout_request_id", response.CheckoutRequestID).
		Str("amount", amount.String()).
		Msg("STK push requested")

	return &response, nil
}

// RegisterC2BURLs registers the validation and confirmation callbacks.
// One-time setup per shortcode.
func (c *Client) RegisterC2BURLs() error {
	payload := map[string]interface{}{
		"ShortCode":       c.cfg.ShortCode,
		"ResponseType":    "Completed",
		"ConfirmationURL": c.cfg.C2BConfirmationURL,
		"ValidationURL":   c.cfg.C2BValidationURL,
	}

	var response map[string]interface{}
	if err := c.post("/mpesa/c2b/v1/registerurl", payload, &response); err != nil {
		return fmt.Errorf("c2b url registration failed: %w", err)
	}

	c.log.Info().Msg("C2B URLs registered")
	return nil
}

// RegisterPull nominates the shortcode for pull transaction queries.
// One-time setup.
func (c *Client) RegisterPull(nominatedNumber string) error {
	payload := map[string]interface{}{
		"ShortCode":       c.cfg.PullShortCode,
		"RequestType":     "Pull",
		"NominatedNumber": nominatedNumber,
		"CallBackURL":     c.cfg.PullCallbackURL,
	}

	var response map[string]interface{}
	if err := c.post("/pulltransactions/v1/register", payload, &response); err != nil {
		return fmt.Errorf("pull registration failed: %w", err)
	}

	c.log.Info().Msg("Pull shortcode registered")
	return nil
}

// QueryPullTransactions fetches transactions the gateway saw in a window,
// used to audit for callbacks that never arrived.
func (c *Client) QueryPullTransactions(startDate, endDate string, offset int) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"ShortCode":   c.cfg.PullShortCode,
		"StartDate":   startDate,
		"EndDate":     endDate,
		"OffSetValue": strconv.Itoa(offset),
	}

	var response json.RawMessage
	if err := c.post("/pulltransactions/v1/query", payload, &response); err != nil {
		return nil, fmt.Errorf("pull query failed: %w", err)
	}
	return response, nil
}

// post sends an authenticated JSON request and decodes the reply into out.
func (c *Client) post(path string, payload interface{}, out interface{}) error {
	token, err := c.Token()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
