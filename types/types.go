package types

import (
	"fmt"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// Header names used on the wire.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// PaymentRequirements is one entry of a 402 challenge's accepts list.
// Amounts are decimal strings in the asset's minor units.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"` // absolute URL
	Description       string                 `json:"description"`
	MimeType          string                 `json:"mimeType"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"` // EIP-3009 token contract
	Extra             map[string]interface{} `json:"extra,omitempty"` // EIP-712 name and version for exact/EVM
}

// X402Response is the body of a 402 challenge.
type X402Response struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error"`
}

// PaymentPayload is the decoded form of the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     EIP3009Payload `json:"payload"`
}

// EIP3009Payload carries a signed transferWithAuthorization.
type EIP3009Payload struct {
	Signature     string               `json:"signature"` // 0x-prefixed 65-byte r||s||v
	Authorization EIP3009Authorization `json:"authorization"`
}

type EIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // uint256
	ValidAfter  string `json:"validAfter"`  // uint256 timestamp
	ValidBefore string `json:"validBefore"` // uint256 timestamp
	Nonce       string `json:"nonce"`       // bytes32
}

// VerifyRequest is the body sent to a facilitator's /verify and /settle endpoints.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse represents the facilitator's verification result.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse represents the facilitator's settlement result. It is also
// what the X-PAYMENT-RESPONSE header carries back to the client.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Validate checks a facilitator request before it leaves the server. The
// proof must speak the same protocol version as the request.
func (v *VerifyRequest) Validate() error {
	switch {
	case v.X402Version <= 0:
		return fmt.Errorf("x402Version must be positive, got %d", v.X402Version)
	case v.PaymentPayload.X402Version != v.X402Version:
		return fmt.Errorf("unsupported paymentPayload.x402Version %d", v.PaymentPayload.X402Version)
	case v.PaymentPayload.Payload.Signature == "":
		return fmt.Errorf("paymentPayload.payload.signature: missing")
	}
	return v.PaymentRequirements.Validate()
}

// X402Error is the error type returned across packages. Code is one of the
// Err* constants below.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e X402Error) Error() string {
	return e.Message
}

// Is matches on Code so callers can compare against a zero-message template.
func (e X402Error) Is(target error) bool {
	switch t := target.(type) {
	case X402Error:
		return t.Code == e.Code
	case *X402Error:
		return t != nil && t.Code == e.Code
	}
	return false
}

// Error codes.
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
	ErrUnknownTier         = "UNKNOWN_TIER"
	ErrPurchaseInProgress  = "PURCHASE_IN_PROGRESS"
	ErrNoWallet            = "NO_WALLET"
	ErrAmountExceedsLimit  = "AMOUNT_EXCEEDS_LIMIT"
)

// Validate reports the first missing field of pr.
func (pr *PaymentRequirements) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"scheme", pr.Scheme},
		{"network", pr.Network},
		{"maxAmountRequired", pr.MaxAmountRequired},
		{"payTo", pr.PayTo},
		{"asset", pr.Asset},
	} {
		if f.value == "" {
			return fmt.Errorf("paymentRequirements.%s: missing", f.name)
		}
	}
	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be positive, got %d", pr.MaxTimeoutSeconds)
	}
	return nil
}
