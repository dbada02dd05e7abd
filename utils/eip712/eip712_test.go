package eip712

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fujiDomain() Domain {
	return Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(43113),
		VerifyingContract: common.HexToAddress("0x5425890298aed601595a70AB815c96711a31Bc65"),
	}
}

func TestRecoverSignerMatchesSigningKey(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(priv.PublicKey)

	nonce, err := HexToBytes32("0xf408d6d1f1d1bca7c6396ed30f00a46ca4e5b073fff983e42b348776a5aa651c")
	require.NoError(t, err)

	auth := TransferAuthorization{
		From:        from,
		To:          common.HexToAddress("0x384Aa214be0B279cbf211e9b2C992d8633F77848"),
		Value:       big.NewInt(10000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(1900000000),
		Nonce:       nonce,
	}
	digest, err := TransferDigest(fujiDomain(), auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest.Bytes(), priv)
	require.NoError(t, err)
	sig[64] += 27

	signer, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, from, signer)

	// a different message must not recover the same signer
	auth.Value = big.NewInt(10001)
	other, err := TransferDigest(fujiDomain(), auth)
	require.NoError(t, err)
	assert.NotEqual(t, digest, other)
	signer, err = RecoverSigner(other, sig)
	require.NoError(t, err)
	assert.NotEqual(t, from, signer)
}

func TestDomainSeparatorDependsOnChain(t *testing.T) {
	a, err := DomainSeparator(fujiDomain())
	require.NoError(t, err)

	d := fujiDomain()
	d.ChainID = big.NewInt(43114)
	b, err := DomainSeparator(d)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = DomainSeparator(Domain{Name: "USD Coin"})
	assert.Error(t, err)
}

func TestHexToBytes32(t *testing.T) {
	out, err := HexToBytes32("0x01")
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[31])

	_, err = HexToBytes32("0xzz")
	assert.Error(t, err)

	_, err = HexToBytes32("0x" + common.Bytes2Hex(make([]byte, 33)))
	assert.Error(t, err)
}

func TestRecoverSignerRejectsShortSignature(t *testing.T) {
	_, err := RecoverSigner(common.Hash{}, []byte{1, 2, 3})
	assert.Error(t, err)
}
