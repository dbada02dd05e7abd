// Package wallet holds the client's signing key and produces x-payment proofs.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
	"github.com/vitwit/balancerail/utils/eip712"
)

// validAfterSkew backdates authorizations so small clock drift between payer
// and facilitator does not reject them.
const validAfterSkew = 10 * time.Minute

// Wallet is a connected EVM account on a single network.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	network types.Network
	chainID *big.Int
	now     func() time.Time
}

// FromHex connects a wallet from a hex private key.
func FromHex(privateKeyHex string, network types.Network) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: fmt.Sprintf("invalid private key: %v", err)}
	}
	return New(key, network)
}

func New(key *ecdsa.PrivateKey, network types.Network) (*Wallet, error) {
	id, ok := network.ChainID()
	if !ok {
		return nil, &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", network),
		}
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		network: network,
		chainID: big.NewInt(id),
		now:     time.Now,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) Network() types.Network {
	return w.network
}

// SignPayment authorizes exactly req.MaxAmountRequired to req.PayTo and
// returns the encoded X-PAYMENT header value.
func (w *Wallet) SignPayment(ctx context.Context, req types.PaymentRequirements) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if types.Network(req.Network) != w.network {
		return "", &types.X402Error{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("wallet is on %s, payment requires %s", w.network, req.Network),
		}
	}
	if err := utils.ValidateAddress(req.PayTo); err != nil {
		return "", &types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()}
	}
	if err := utils.ValidateAddress(req.Asset); err != nil {
		return "", &types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()}
	}
	value, err := utils.ValidateBigInt(req.MaxAmountRequired)
	if err != nil {
		return "", &types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()}
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	now := w.now()
	auth := eip712.TransferAuthorization{
		From:        w.address,
		To:          common.HexToAddress(req.PayTo),
		Value:       value,
		ValidAfter:  big.NewInt(now.Add(-validAfterSkew).Unix()),
		ValidBefore: big.NewInt(now.Add(time.Duration(req.MaxTimeoutSeconds) * time.Second).Unix()),
		Nonce:       nonce,
	}

	digest, err := eip712.TransferDigest(w.domain(req), auth)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	sig, err := crypto.Sign(digest.Bytes(), w.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27

	return utils.EncodePaymentHeader(&types.PaymentPayload{
		X402Version: int(types.X402Version1),
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: types.EIP3009Payload{
			Signature: hexutil.Encode(sig),
			Authorization: types.EIP3009Authorization{
				From:        auth.From.Hex(),
				To:          auth.To.Hex(),
				Value:       auth.Value.String(),
				ValidAfter:  auth.ValidAfter.String(),
				ValidBefore: auth.ValidBefore.String(),
				Nonce:       hexutil.Encode(nonce[:]),
			},
		},
	})
}

func (w *Wallet) domain(req types.PaymentRequirements) eip712.Domain {
	name, _ := req.Extra["name"].(string)
	if name == "" {
		name = types.TokenEIP712Name
	}
	version, _ := req.Extra["version"].(string)
	if version == "" {
		version = types.TokenEIP712Ver
	}
	return eip712.Domain{
		Name:              name,
		Version:           version,
		ChainID:           w.chainID,
		VerifyingContract: common.HexToAddress(req.Asset),
	}
}
