// Package paywall wraps an HTTP transport so requests answered with a 402
// challenge are paid for and retried once with an X-PAYMENT proof.
package paywall

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
)

// Signer produces an X-PAYMENT value for accepted terms.
type Signer interface {
	Network() types.Network
	SignPayment(ctx context.Context, req types.PaymentRequirements) (string, error)
}

// Transport is an http.RoundTripper that pays 402 challenges up to MaxAmount.
type Transport struct {
	base      http.RoundTripper
	signer    Signer
	maxAmount *big.Int
	logger    logger.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil). maxAmount is the
// ceiling in minor units the wallet will authorize for a single request.
func NewTransport(base http.RoundTripper, signer Signer, maxAmount *big.Int, l logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		signer:    signer,
		maxAmount: new(big.Int).Set(maxAmount),
		logger:    logger.OrNoop(l),
	}
}

// NewClient returns an *http.Client whose requests go through a Transport.
func NewClient(base http.RoundTripper, signer Signer, maxAmount *big.Int, l logger.Logger) *http.Client {
	return &http.Client{Transport: NewTransport(base, signer, maxAmount, l)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired || req.Header.Get(types.HeaderPayment) != "" {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read 402 body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	challenge, err := utils.ParseX402Response(raw)
	if err != nil {
		t.logger.Warn("unreadable payment challenge", map[string]any{"url": req.URL.String(), "err": err})
		return resp, nil
	}

	terms, err := t.selectTerms(challenge.Accepts)
	if err != nil {
		return nil, err
	}

	proof, err := t.signer.SignPayment(req.Context(), terms)
	if err != nil {
		return nil, fmt.Errorf("sign payment: %w", err)
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set(types.HeaderPayment, proof)

	t.logger.Debug("retrying with payment", map[string]any{
		"url":    req.URL.String(),
		"amount": terms.MaxAmountRequired,
		"payTo":  terms.PayTo,
	})
	return t.base.RoundTrip(retry)
}

// selectTerms picks the first offer on the signer's network within the ceiling.
func (t *Transport) selectTerms(accepts []types.PaymentRequirements) (types.PaymentRequirements, error) {
	network := t.signer.Network().String()
	var cheapest *big.Int
	for _, req := range accepts {
		if req.Network != network || req.Scheme != string(types.SchemeExact) {
			continue
		}
		amount, err := utils.ValidateBigInt(req.MaxAmountRequired)
		if err != nil {
			continue
		}
		if amount.Cmp(t.maxAmount) <= 0 {
			return req, nil
		}
		if cheapest == nil || amount.Cmp(cheapest) < 0 {
			cheapest = amount
		}
	}
	if cheapest != nil {
		return types.PaymentRequirements{}, &types.X402Error{
			Code:    types.ErrAmountExceedsLimit,
			Message: fmt.Sprintf("payment of %s exceeds allowed %s", cheapest, t.maxAmount),
		}
	}
	return types.PaymentRequirements{}, &types.X402Error{
		Code:    types.ErrUnsupportedNetwork,
		Message: fmt.Sprintf("no payment option on %s", network),
	}
}
