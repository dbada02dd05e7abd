package types

import (
	"net/http"
	"strconv"
	"time"
)

// TierID identifies a priced content-access level.
type TierID string

const (
	TierBasic      TierID = "basic"
	TierPremium    TierID = "premium"
	TierEnterprise TierID = "enterprise"
)

func (t TierID) String() string {
	return string(t)
}

// Tier is one immutable catalog entry.
type Tier struct {
	ID           TierID   `json:"id" yaml:"id" validate:"required,oneof=basic premium enterprise"`
	Label        string   `json:"label" yaml:"label" validate:"required"`
	Description  string   `json:"description" yaml:"description"`
	Badge        string   `json:"badge,omitempty" yaml:"badge"`
	PriceDisplay string   `json:"priceDisplay" yaml:"price_display" validate:"required,numeric"`
	Amount       int64    `json:"amount,string" yaml:"amount" validate:"gt=0"` // minor units, 6 decimals
	Resource     string   `json:"resource" yaml:"resource" validate:"required,startswith=/"`
	Data         string   `json:"-" yaml:"data" validate:"required"`
	Features     []string `json:"-" yaml:"features"`
}

// AmountString renders the minor-unit amount the way it travels on the wire.
func (t Tier) AmountString() string {
	return strconv.FormatInt(t.Amount, 10)
}

// Asset identifies the ERC-20 contract a price is denominated in.
type Asset struct {
	Address string `json:"address" validate:"required"`
}

// Price is an exact amount in the asset's minor units.
type Price struct {
	Amount string `json:"amount" validate:"required,numeric"`
	Asset  Asset  `json:"asset"`
}

// Content is the gated payload released on a successful payment.
type Content struct {
	Tier      string   `json:"tier"`
	Data      string   `json:"data"`
	Features  []string `json:"features,omitempty"`
	Timestamp string   `json:"timestamp"` // ISO-8601 UTC, millisecond precision
}

// ISOTimestampLayout renders UTC times as 2006-01-02T15:04:05.000Z.
const ISOTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ISOTimestamp formats t in UTC with ISOTimestampLayout.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format(ISOTimestampLayout)
}

// SettleRequest is what a gate hands to the settlement verifier.
type SettleRequest struct {
	ResourceURL string
	Method      string
	PaymentData string // raw X-PAYMENT value, empty when absent
	PayTo       string
	Network     Network
	Price       Price
	Description string
}

// SettleResult is the verifier's verdict. Anything but 200 is passed back to
// the caller untouched.
type SettleResult struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// OK reports whether the verifier released the resource.
func (r *SettleResult) OK() bool {
	return r != nil && r.Status == http.StatusOK
}
