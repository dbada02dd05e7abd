package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
	"github.com/vitwit/balancerail/utils/eip712"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultMaxTimeoutSeconds = 300

	msgPaymentRequired = "X-PAYMENT header is required"
)

// Invalid reasons reported by QuickVerify.
const (
	ReasonSchemeMismatch   = "unsupported_scheme"
	ReasonNetworkMismatch  = "invalid_network"
	ReasonRecipient        = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonValue            = "invalid_exact_evm_payload_authorization_value"
	ReasonValidAfter       = "invalid_exact_evm_payload_authorization_valid_after"
	ReasonValidBefore      = "invalid_exact_evm_payload_authorization_valid_before"
	ReasonSignature        = "invalid_exact_evm_payload_signature"
	ReasonUnexpectedVerify = "unexpected_verify_error"
	ReasonSimulation       = "invalid_exact_evm_payload_transaction_simulation_failed"
	ReasonNonceUsed        = "invalid_exact_evm_payload_authorization_nonce_used"
)

// Simulator checks a payment against chain state before it is handed to the
// facilitator: the authorization nonce must be unused and the transfer must
// not revert.
type Simulator interface {
	AuthorizationUsed(ctx context.Context, authorizer common.Address, nonce [32]byte) (bool, error)
	SimulateTransfer(ctx context.Context, payload *types.PaymentPayload) (bool, error)
}

// Settler turns a SettleRequest into a SettleResult: a 402 challenge when
// no proof is presented, a 402 rejection when the proof fails, and a 200 with
// an X-PAYMENT-RESPONSE header once the facilitator has settled on-chain.
type Settler struct {
	client            Client
	simulator         Simulator
	timeout           time.Duration
	maxTimeoutSeconds int
	logger            logger.Logger
	now               func() time.Time
}

type SettlerOption func(*Settler)

func WithTimeout(t time.Duration) SettlerOption {
	return func(s *Settler) {
		if t > 0 {
			s.timeout = t
		}
	}
}

func WithLogger(l logger.Logger) SettlerOption {
	return func(s *Settler) {
		s.logger = logger.OrNoop(l)
	}
}

func WithClock(now func() time.Time) SettlerOption {
	return func(s *Settler) {
		s.now = now
	}
}

// WithSimulator rejects proofs whose transfer would revert on-chain.
func WithSimulator(sim Simulator) SettlerOption {
	return func(s *Settler) {
		s.simulator = sim
	}
}

// WithMaxTimeoutSeconds sets how long a signed authorization may stay valid.
func WithMaxTimeoutSeconds(n int) SettlerOption {
	return func(s *Settler) {
		if n > 0 {
			s.maxTimeoutSeconds = n
		}
	}
}

func NewSettler(client Client, opts ...SettlerOption) *Settler {
	s := &Settler{
		client:            client,
		timeout:           defaultTimeout,
		maxTimeoutSeconds: defaultMaxTimeoutSeconds,
		logger:            logger.NoopLogger{},
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Requirements builds the payment terms advertised for req.
func (s *Settler) Requirements(req *types.SettleRequest) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           req.Network.String(),
		MaxAmountRequired: req.Price.Amount,
		Resource:          req.ResourceURL,
		Description:       req.Description,
		MimeType:          "application/json",
		PayTo:             req.PayTo,
		MaxTimeoutSeconds: s.maxTimeoutSeconds,
		Asset:             req.Price.Asset.Address,
		Extra: map[string]interface{}{
			"name":    types.TokenEIP712Name,
			"version": types.TokenEIP712Ver,
		},
	}
}

// Settle implements the settlement verifier contract. Rejections come back as
// results; only facilitator transport failures are returned as errors.
func (s *Settler) Settle(ctx context.Context, req *types.SettleRequest) (*types.SettleResult, error) {
	settleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	requirements := s.Requirements(req)
	if err := requirements.Validate(); err != nil {
		return nil, &types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()}
	}

	if strings.TrimSpace(req.PaymentData) == "" {
		return challenge(requirements, msgPaymentRequired)
	}

	payload, err := utils.DecodePaymentHeader(req.PaymentData)
	if err != nil {
		return challenge(requirements, err.Error())
	}

	verifyReq := &types.VerifyRequest{
		X402Version:         int(types.X402Version1),
		PaymentPayload:      *payload,
		PaymentRequirements: requirements,
	}
	if err := verifyReq.Validate(); err != nil {
		s.logger.Info("payment rejected before facilitator", map[string]any{
			"resource": req.ResourceURL,
			"code":     types.ErrInvalidPayload,
			"reason":   err.Error(),
		})
		return challenge(requirements, err.Error())
	}

	if reason := s.QuickVerify(payload, requirements); reason != "" {
		s.logger.Info("payment rejected before facilitator", map[string]any{
			"resource": req.ResourceURL,
			"reason":   reason,
		})
		return challenge(requirements, reason)
	}

	if s.simulator != nil {
		reason, err := s.simulate(settleCtx, payload)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			s.logger.Info("payment rejected by chain check", map[string]any{
				"resource": req.ResourceURL,
				"payer":    payload.Payload.Authorization.From,
				"reason":   reason,
			})
			return challenge(requirements, reason)
		}
	}

	verdict, err := s.client.Verify(settleCtx, verifyReq)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if !verdict.IsValid {
		reason := verdict.InvalidReason
		if reason == "" {
			reason = ReasonUnexpectedVerify
		}
		return challenge(requirements, reason)
	}

	settled, err := s.client.Settle(settleCtx, verifyReq)
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	if !settled.Success {
		reason := settled.ErrorReason
		if reason == "" {
			reason = "settlement failed"
		}
		return challenge(requirements, reason)
	}

	s.logger.Info("payment settled", map[string]any{
		"resource":    req.ResourceURL,
		"network":     settled.Network,
		"transaction": settled.Transaction,
		"payer":       settled.Payer,
	})

	encoded, err := utils.EncodeSettleResponse(settled)
	if err != nil {
		return nil, fmt.Errorf("encode settle response: %w", err)
	}
	headers := http.Header{}
	headers.Set(types.HeaderPaymentResponse, encoded)
	return &types.SettleResult{Status: http.StatusOK, Headers: headers}, nil
}

// simulate runs the on-chain checks. It returns a rejection reason, or an
// error when the chain could not be reached.
func (s *Settler) simulate(ctx context.Context, payload *types.PaymentPayload) (string, error) {
	auth := payload.Payload.Authorization
	nonce, err := eip712.HexToBytes32(auth.Nonce)
	if err != nil {
		return ReasonSignature, nil
	}
	used, err := s.simulator.AuthorizationUsed(ctx, common.HexToAddress(auth.From), nonce)
	if err != nil {
		return "", fmt.Errorf("check authorization nonce: %w", err)
	}
	if used {
		return ReasonNonceUsed, nil
	}
	ok, err := s.simulator.SimulateTransfer(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("simulate payment: %w", err)
	}
	if !ok {
		return ReasonSimulation, nil
	}
	return "", nil
}

// QuickVerify performs the checks that need no chain access: terms match,
// validity window, and that the signature recovers to the stated payer.
// It returns an empty reason when the payload passes.
func (s *Settler) QuickVerify(payload *types.PaymentPayload, req types.PaymentRequirements) string {
	if payload.Scheme != req.Scheme {
		return ReasonSchemeMismatch
	}
	if payload.Network != req.Network {
		return ReasonNetworkMismatch
	}

	auth := payload.Payload.Authorization
	if !strings.EqualFold(auth.To, req.PayTo) {
		return ReasonRecipient
	}

	value, err := utils.ValidateBigInt(auth.Value)
	if err != nil {
		return ReasonValue
	}
	required, err := utils.ValidateBigInt(req.MaxAmountRequired)
	if err != nil || value.Cmp(required) < 0 {
		return ReasonValue
	}

	now := big.NewInt(s.now().Unix())
	validAfter, err := utils.ValidateBigInt(auth.ValidAfter)
	if err != nil || now.Cmp(validAfter) < 0 {
		return ReasonValidAfter
	}
	validBefore, err := utils.ValidateBigInt(auth.ValidBefore)
	if err != nil || now.Cmp(validBefore) >= 0 {
		return ReasonValidBefore
	}

	if err := verifySignature(payload, req, value, validAfter, validBefore); err != nil {
		return ReasonSignature
	}
	return ""
}

func verifySignature(payload *types.PaymentPayload, req types.PaymentRequirements, value, validAfter, validBefore *big.Int) error {
	auth := payload.Payload.Authorization
	chainID, ok := types.Network(req.Network).ChainID()
	if !ok {
		return fmt.Errorf("unknown network %s", req.Network)
	}
	if err := utils.ValidateAddress(auth.From); err != nil {
		return err
	}
	nonce, err := eip712.HexToBytes32(auth.Nonce)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(payload.Payload.Signature)
	if err != nil {
		return err
	}

	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)
	digest, err := eip712.TransferDigest(eip712.Domain{
		Name:              name,
		Version:           version,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(req.Asset),
	}, eip712.TransferAuthorization{
		From:        common.HexToAddress(auth.From),
		To:          common.HexToAddress(auth.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
	})
	if err != nil {
		return err
	}

	signer, err := eip712.RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(auth.From) {
		return errors.New("signer does not match authorization.from")
	}
	return nil
}

func challenge(req types.PaymentRequirements, reason string) (*types.SettleResult, error) {
	body, err := json.Marshal(types.X402Response{
		X402Version: int(types.X402Version1),
		Accepts:     []types.PaymentRequirements{req},
		Error:       reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode challenge: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &types.SettleResult{
		Status:  http.StatusPaymentRequired,
		Headers: headers,
		Body:    body,
	}, nil
}
