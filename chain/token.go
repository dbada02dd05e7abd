// Package chain reads EIP-3009 token state over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
	"github.com/vitwit/balancerail/utils/eip712"
)

const tokenABI = `[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "account", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "authorizer", "type": "address" },
      { "name": "nonce", "type": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transferWithAuthorization",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "from", "type": "address" },
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" },
      { "name": "validAfter", "type": "uint256" },
      { "name": "validBefore", "type": "uint256" },
      { "name": "nonce", "type": "bytes32" },
      { "name": "v", "type": "uint8" },
      { "name": "r", "type": "bytes32" },
      { "name": "s", "type": "bytes32" }
    ],
    "outputs": []
  }
]`

var parsedABI = mustParseABI(tokenABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Caller is the slice of ethclient.Client the token needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Token is a read-only handle on an EIP-3009 ERC-20 contract.
type Token struct {
	address common.Address
	caller  Caller
}

// Dial connects to rpcURL and returns the token at address together with
// the client, which the caller must Close.
func Dial(ctx context.Context, rpcURL, address string) (*Token, *ethclient.Client, error) {
	if err := utils.ValidateAddress(address); err != nil {
		return nil, nil, err
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewToken(address, client), client, nil
}

func NewToken(address string, caller Caller) *Token {
	return &Token{address: common.HexToAddress(address), caller: caller}
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := t.caller.CallContract(ctx, ethereum.CallMsg{From: from, To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return parsedABI.Unpack(method, out)
}

// BalanceOf returns owner's balance in minor units.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.call(ctx, common.Address{}, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected result %T", out[0])
	}
	return balance, nil
}

// AuthorizationUsed reports whether nonce was already consumed for authorizer.
func (t *Token) AuthorizationUsed(ctx context.Context, authorizer common.Address, nonce [32]byte) (bool, error) {
	out, err := t.call(ctx, common.Address{}, "authorizationState", authorizer, nonce)
	if err != nil {
		return false, fmt.Errorf("authorizationState: %w", err)
	}
	used, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("authorizationState: unexpected result %T", out[0])
	}
	return used, nil
}

// SimulateTransfer dry-runs transferWithAuthorization for payload with
// eth_call. A JSON-RPC error reply (a revert) yields false with a nil error;
// transport failures are returned.
func (t *Token) SimulateTransfer(ctx context.Context, payload *types.PaymentPayload) (bool, error) {
	auth := payload.Payload.Authorization
	v, r, s, err := splitSignature(payload.Payload.Signature)
	if err != nil {
		return false, err
	}
	nonce, err := eip712.HexToBytes32(auth.Nonce)
	if err != nil {
		return false, err
	}
	args := make([]*big.Int, 0, 3)
	for _, raw := range []string{auth.Value, auth.ValidAfter, auth.ValidBefore} {
		n, err := utils.ValidateBigInt(raw)
		if err != nil {
			return false, err
		}
		args = append(args, n)
	}

	from := common.HexToAddress(auth.From)
	data, err := parsedABI.Pack("transferWithAuthorization",
		from, common.HexToAddress(auth.To), args[0], args[1], args[2], nonce, v, r, s)
	if err != nil {
		return false, fmt.Errorf("pack transferWithAuthorization: %w", err)
	}
	if _, err := t.caller.CallContract(ctx, ethereum.CallMsg{From: from, To: &t.address, Data: data}, nil); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return false, nil
		}
		return false, fmt.Errorf("simulate transferWithAuthorization: %w", err)
	}
	return true, nil
}

// splitSignature returns v in the 27/28 form the contract's ecrecover expects.
func splitSignature(sigHex string) (v uint8, r [32]byte, s [32]byte, err error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return 0, r, s, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return 0, r, s, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}
