package payment

import (
	"context"
	"errors"
	"time"
)

// Transaction status values reported by the payment gateway.
const (
	GatewayStatusPending    = "pending"
	GatewayStatusSettlement = "settlement"
	GatewayStatusExpire     = "expire"
	GatewayStatusCancel     = "cancel"
	GatewayStatusDeny       = "deny"
)

// ErrAlreadyRunning is returned when a sweep is requested while a prior run
// of the same sweep is still in flight. The request is rejected, not queued.
var ErrAlreadyRunning = errors.New("operation already running")

// GatewayTransaction is the gateway's view of one payment, used to reconcile
// local state with gateway truth.
type GatewayTransaction struct {
	OrderRef string
	Status   string
	PaidAt   *time.Time
	RawJSON  string
}

// VerificationClient re-checks a payment's status against the gateway's
// status API. It is the primary defense against lost webhooks.
type VerificationClient interface {
	CheckStatus(ctx context.Context, orderRef string) (*GatewayTransaction, error)
}

// ExpireResult reports one stale-intent sweep.
type ExpireResult struct {
	Found     int `json:"found"`
	Cancelled int `json:"cancelled"`
}

// VerifyResult reports one verification sweep.
type VerifyResult struct {
	Checked  int `json:"checked"`
	Verified int `json:"verified"`
}

// RecoverResult reports one recovery sweep. Recovered > 0 indicates a
// systemic webhook delivery problem, not routine behavior.
type RecoverResult struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
}

// WebhookInput is the normalized inbound gateway callback.
type WebhookInput struct {
	Provider          string
	ProviderEventID   string
	OrderRef          string
	TransactionStatus string
	PayloadJSON       string
	SignatureValid    bool
}
