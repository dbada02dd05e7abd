// Package eip712 hashes EIP-3009 TransferWithAuthorization messages under an
// EIP-712 domain and recovers their signers.
package eip712

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the EIP-712 domain of the token contract.
type Domain struct {
	Name              string // e.g. "USD Coin"
	Version           string // e.g. "2"
	ChainID           *big.Int
	VerifyingContract common.Address
}

var (
	transferAuthTypeHash = crypto.Keccak256Hash([]byte("TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	// field order matters
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// TransferAuthorization is the typed message signed by the payer.
type TransferAuthorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// padLeft32 returns a 32-byte right-aligned representation of the given big.Int
func padLeft32(i *big.Int) []byte {
	return common.LeftPadBytes(i.Bytes(), 32)
}

func addressTo32(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// HexToBytes32 converts hex (with/without 0x) to a 32-byte array. Shorter
// inputs are left padded; longer inputs are rejected.
func HexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) > 32 {
		return out, fmt.Errorf("bytes32 value has %d bytes", len(b))
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// DomainSeparator builds keccak256(abi.encode(typeHash, keccak(name), keccak(version), chainId, verifyingContract)).
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == nil || d.VerifyingContract == (common.Address{}) {
		return common.Hash{}, errors.New("incomplete domain")
	}

	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		padLeft32(d.ChainID),
		addressTo32(d.VerifyingContract),
	), nil
}

// HashTransferAuthorization computes the EIP-3009 struct hash.
func HashTransferAuthorization(a TransferAuthorization) common.Hash {
	return crypto.Keccak256Hash(
		transferAuthTypeHash.Bytes(),
		addressTo32(a.From),
		addressTo32(a.To),
		padLeft32(a.Value),
		padLeft32(a.ValidAfter),
		padLeft32(a.ValidBefore),
		a.Nonce[:],
	)
}

// TypedDataHash returns keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

// TransferDigest is the digest a payer signs for a TransferAuthorization.
func TransferDigest(d Domain, a TransferAuthorization) (common.Hash, error) {
	sep, err := DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}
	return TypedDataHash(sep, HashTransferAuthorization(a)), nil
}

// RecoverSigner recovers the address that signed digest.
// sig must be 65 bytes (R||S||V); V may be 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature must be 65 bytes")
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
