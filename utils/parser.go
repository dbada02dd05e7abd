package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/balancerail/types"
)

var validate = validator.New()

// Validator exposes the shared validator so other packages register against one instance.
func Validator() *validator.Validate {
	return validate
}

type paymentHeader struct {
	X402Version int    `json:"x402Version" validate:"gt=0"`
	Scheme      string `json:"scheme" validate:"required"`
	Network     string `json:"network" validate:"required"`
	Payload     struct {
		Signature     string `json:"signature" validate:"required"`
		Authorization struct {
			From        string `json:"from" validate:"required"`
			To          string `json:"to" validate:"required"`
			Value       string `json:"value" validate:"required,numeric"`
			ValidAfter  string `json:"validAfter" validate:"required,numeric"`
			ValidBefore string `json:"validBefore" validate:"required,numeric"`
			Nonce       string `json:"nonce" validate:"required"`
		} `json:"authorization"`
	} `json:"payload"`
}

// DecodePaymentHeader parses an X-PAYMENT value (base64 of JSON).
func DecodePaymentHeader(header string) (*types.PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("payment header is not base64: %v", err),
		}
	}

	var check paymentHeader
	if err := json.Unmarshal(raw, &check); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse payment header: %v", err),
		}
	}
	if err := validate.Struct(&check); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse payment header: %v", err),
		}
	}
	return &payload, nil
}

// EncodePaymentHeader is the inverse of DecodePaymentHeader.
func EncodePaymentHeader(payload *types.PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeSettleResponse produces the X-PAYMENT-RESPONSE header value.
func EncodeSettleResponse(resp *types.SettleResponse) (string, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettleResponse parses an X-PAYMENT-RESPONSE header value.
func DecodeSettleResponse(header string) (*types.SettleResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("settle response is not base64: %w", err)
	}
	var resp types.SettleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse settle response: %w", err)
	}
	return &resp, nil
}

// ParseX402Response decodes a 402 challenge body.
func ParseX402Response(data []byte) (*types.X402Response, error) {
	var resp types.X402Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("failed to parse payment requirements: %v", err),
		}
	}
	for i := range resp.Accepts {
		if err := resp.Accepts[i].Validate(); err != nil {
			return nil, &types.X402Error{
				Code:    types.ErrInvalidRequirements,
				Message: fmt.Sprintf("accepts[%d]: %v", i, err),
			}
		}
	}
	return &resp, nil
}
