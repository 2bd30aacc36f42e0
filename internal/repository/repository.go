package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/movra/payout-service/internal/model"
)

// ErrNotFound is returned when no payout exists for the requested id.
var ErrNotFound = errors.New("payout not found")

// Field names a payout column that UpdatePayout may write.
type Field string

const (
	FieldAmount           Field = "amount"
	FieldCurrency         Field = "currency"
	FieldRecipientDetails Field = "recipient_details"
	FieldStatus           Field = "status"
	FieldComment          Field = "comment"
)

// PayoutRepository defines the interface for payout storage
type PayoutRepository interface {
	// CreatePayout inserts a new payout
	CreatePayout(ctx context.Context, payout *model.Payout) error

	// GetPayout retrieves a payout by ID
	GetPayout(ctx context.Context, id string) (*model.Payout, error)

	// ListPayouts retrieves payouts with optional filters, newest first
	ListPayouts(ctx context.Context, filter PayoutFilter) ([]*model.Payout, error)

	// UpdatePayout persists only the listed fields plus updated_at.
	// payout.UpdatedAt is set to the written timestamp.
	UpdatePayout(ctx context.Context, payout *model.Payout, fields ...Field) error

	// DeletePayout permanently removes a payout
	DeletePayout(ctx context.Context, id string) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}

// PayoutFilter defines filters for listing payouts
type PayoutFilter struct {
	Status   model.PayoutStatus
	Currency model.Currency
	Limit    int
	Offset   int
}

// Match reports whether p passes the status and currency filters.
func (f PayoutFilter) Match(p *model.Payout) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Currency != "" && p.Currency != f.Currency {
		return false
	}
	return true
}

// page applies offset and limit to an already filtered, ordered slice.
func (f PayoutFilter) page(payouts []*model.Payout) []*model.Payout {
	if f.Offset > 0 {
		if f.Offset >= len(payouts) {
			return []*model.Payout{}
		}
		payouts = payouts[f.Offset:]
	}
	if f.Limit > 0 && len(payouts) > f.Limit {
		payouts = payouts[:f.Limit]
	}
	return payouts
}

func validateFields(fields []Field) error {
	if len(fields) == 0 {
		return errors.New("update: no fields given")
	}
	for _, f := range fields {
		switch f {
		case FieldAmount, FieldCurrency, FieldRecipientDetails, FieldStatus, FieldComment:
		default:
			return errors.New("update: unknown field " + string(f))
		}
	}
	return nil
}

// decodeRecipientDetails parses stored recipient details keeping numbers
// as json.Number, so large integers come back digit for digit.
func decodeRecipientDetails(data []byte) (model.RecipientDetails, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var details model.RecipientDetails
	if err := dec.Decode(&details); err != nil {
		return nil, err
	}
	return details, nil
}
