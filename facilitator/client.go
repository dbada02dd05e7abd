// Package facilitator is the settlement verifier a payment gate delegates to.
// It issues 402 challenges and forwards payment proofs to a remote x402
// facilitator for verification and on-chain settlement.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vitwit/balancerail/types"
)

// HeaderServerWallet tells the facilitator which server wallet submits settlements.
const HeaderServerWallet = "X-Server-Wallet-Address"

// Client is the remote facilitator contract.
type Client interface {
	Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error)
	Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettleResponse, error)
}

// HTTPClient talks to a facilitator exposing POST /verify and POST /settle.
type HTTPClient struct {
	baseURL      string
	secretKey    string
	serverWallet string
	http         *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a facilitator client. hc may be nil.
func NewHTTPClient(baseURL, secretKey, serverWallet string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		secretKey:    secretKey,
		serverWallet: serverWallet,
		http:         hc,
	}
}

func (c *HTTPClient) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	var out types.VerifyResponse
	if err := c.post(ctx, "/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettleResponse, error) {
	var out types.SettleResponse
	if err := c.post(ctx, "/settle", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.secretKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	}
	if c.serverWallet != "" {
		httpReq.Header.Set(HeaderServerWallet, c.serverWallet)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("facilitator %s: %v", path, err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("facilitator %s: read body: %v", path, err),
		}
	}

	// facilitators answer rejected payments with 400 and a JSON verdict
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("facilitator %s: unexpected status %d", path, resp.StatusCode),
			Data:    string(raw),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("facilitator %s: decode response: %v", path, err),
		}
	}
	return nil
}
