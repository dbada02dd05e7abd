package paywall

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/balancerail/logger"
)

// Wallet is a Signer that also knows its own address.
type Wallet interface {
	Signer
	Address() common.Address
}

// Account is a connected wallet able to hand out payment-enabled clients.
type Account struct {
	wallet Wallet
	base   http.RoundTripper
	logger logger.Logger
}

func NewAccount(w Wallet, base http.RoundTripper, l logger.Logger) *Account {
	return &Account{wallet: w, base: base, logger: logger.OrNoop(l)}
}

// Address returns the checksummed account address.
func (a *Account) Address() string {
	return a.wallet.Address().Hex()
}

// Client returns an http.Client that pays at most maxAmount per request.
func (a *Account) Client(maxAmount *big.Int) *http.Client {
	return NewClient(a.base, a.wallet, maxAmount, a.logger)
}
