package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velvetline/velvetline/internal/pkg/env"
)

const defaultGatewayAPIBaseURL = "https://api.payrail.dev/v2"

// GatewayClient talks to the payment gateway's status-check API. It is the
// VerificationClient used in production.
type GatewayClient struct {
	ServerKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

type gatewayStatusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	SettlementTime    string `json:"settlement_time"`
	StatusMessage     string `json:"status_message"`
}

// NewGatewayClientFromEnv builds a client from GATEWAY_* environment
// variables.
func NewGatewayClientFromEnv() *GatewayClient {
	return &GatewayClient{
		ServerKey:  strings.TrimSpace(env.GetEnv("GATEWAY_SERVER_KEY", "")),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("GATEWAY_API_BASE_URL", defaultGatewayAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CheckStatus fetches the gateway's current view of one payment.
func (c *GatewayClient) CheckStatus(ctx context.Context, orderRef string) (*GatewayTransaction, error) {
	if strings.TrimSpace(c.ServerKey) == "" {
		return nil, errors.New("GATEWAY_SERVER_KEY is not configured")
	}
	if strings.TrimSpace(orderRef) == "" {
		return nil, errors.New("order reference is required")
	}

	url := fmt.Sprintf("%s/%s/status", c.APIBaseURL, orderRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ServerKey, "")
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway status request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed gatewayStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gateway status response parse failed: %w", err)
	}

	tx := &GatewayTransaction{
		OrderRef: parsed.OrderID,
		Status:   strings.ToLower(strings.TrimSpace(parsed.TransactionStatus)),
		RawJSON:  string(body),
	}
	if parsed.SettlementTime != "" {
		if t, err := time.Parse(time.RFC3339, parsed.SettlementTime); err == nil {
			tx.PaidAt = &t
		}
	}
	return tx, nil
}

// VerifyWebhookSignature checks the gateway's webhook signature header. The
// gateway signs with HMAC-SHA512; SHA256 is accepted as a fallback for
// environments configured before the algorithm change.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	if verifyHMAC(payload, decodedSig, []byte(secret), sha512.New) {
		return true
	}
	return verifyHMAC(payload, decodedSig, []byte(secret), sha256.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
