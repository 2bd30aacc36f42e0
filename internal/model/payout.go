package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus represents the status of a payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusSuccess    PayoutStatus = "success"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCanceled   PayoutStatus = "canceled"
)

// PayoutStatuses lists every known status in lifecycle order.
var PayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusSuccess,
	PayoutStatusFailed,
	PayoutStatusCanceled,
}

// Valid reports whether s is a known status.
func (s PayoutStatus) Valid() bool {
	for _, known := range PayoutStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsFinal reports whether the payout is closed for edits.
func (s PayoutStatus) IsFinal() bool {
	switch s {
	case PayoutStatusSuccess, PayoutStatusFailed, PayoutStatusCanceled:
		return true
	default:
		return false
	}
}

// Currency is the payout currency code
type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// DefaultCurrency is used when a create request omits the currency.
const DefaultCurrency = CurrencyRUB

// Currencies lists the supported currencies.
var Currencies = []Currency{CurrencyRUB, CurrencyUSD, CurrencyEUR}

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// MinPayoutAmount is the smallest amount a payout may carry.
var MinPayoutAmount = decimal.RequireFromString("0.01")

const (
	AmountMaxDigits     = 12
	AmountDecimalPlaces = 2
	CommentMaxLength    = 255
)

// RecipientDetails is the free-form recipient payload. Only card_number is
// interpreted by the service.
type RecipientDetails map[string]any

// Payout represents a payout record
type Payout struct {
	ID               string           `json:"id"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         Currency         `json:"currency"`
	RecipientDetails RecipientDetails `json:"recipient_details"`
	Status           PayoutStatus     `json:"status"`
	Comment          string           `json:"comment"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with p.
func (p *Payout) Clone() *Payout {
	c := *p
	if p.RecipientDetails != nil {
		c.RecipientDetails = make(RecipientDetails, len(p.RecipientDetails))
		for k, v := range p.RecipientDetails {
			c.RecipientDetails[k] = v
		}
	}
	return &c
}
