package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/movra/payout-service/internal/model"
	"github.com/shopspring/decimal"
)

// Validation error codes
const (
	CodeRequired         = "required"
	CodeInvalid          = "invalid"
	CodeNull             = "null"
	CodeMinValue         = "min_value"
	CodeMaxDigits        = "max_digits"
	CodeMaxDecimalPlaces = "max_decimal_places"
	CodeInvalidChoice    = "invalid_choice"
	CodeMaxLength        = "max_length"
)

// NonFieldErrors is the field name for errors not tied to one input field.
const NonFieldErrors = "non_field_errors"

var cardNumberPattern = regexp.MustCompile(`^\d{16}$`)

// FieldError describes one rejected input field
type FieldError struct {
	Field  string
	Detail string
	Code   string
}

// ValidationError collects every rejected field of a request
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Detail)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, code, detail string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Detail: detail, Code: code})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

func validateAmount(raw *string, verr *ValidationError) decimal.Decimal {
	if raw == nil {
		verr.add("amount", CodeRequired, "This field is required.")
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		verr.add("amount", CodeInvalid, "Enter a valid number.")
		return decimal.Zero
	}

	places := int32(0)
	if exp := amount.Exponent(); exp < 0 {
		places = -exp
	}
	if places > model.AmountDecimalPlaces {
		verr.add("amount", CodeMaxDecimalPlaces,
			fmt.Sprintf("Ensure that there are no more than %d decimal places.", model.AmountDecimalPlaces))
		return decimal.Zero
	}
	if integerDigits(amount) > model.AmountMaxDigits-model.AmountDecimalPlaces {
		verr.add("amount", CodeMaxDigits,
			fmt.Sprintf("Ensure that there are no more than %d digits in total.", model.AmountMaxDigits))
		return decimal.Zero
	}
	if amount.LessThan(model.MinPayoutAmount) {
		verr.add("amount", CodeMinValue,
			fmt.Sprintf("Payout amount must be at least %s.", model.MinPayoutAmount.StringFixed(model.AmountDecimalPlaces)))
		return decimal.Zero
	}
	return amount
}

// integerDigits counts the digits left of the decimal point from the
// coefficient and exponent alone. Rendering the value would expand
// exponents like 1e300000000 in full.
func integerDigits(d decimal.Decimal) int {
	coef := new(big.Int).Abs(d.Coefficient())
	if coef.Sign() == 0 {
		return 0
	}
	digits := len(coef.String()) + int(d.Exponent())
	if digits < 0 {
		return 0
	}
	return digits
}

func validateCurrency(raw *string, verr *ValidationError) model.Currency {
	if raw == nil {
		return model.DefaultCurrency
	}
	c := model.Currency(*raw)
	if !c.Valid() {
		verr.add("currency", CodeInvalidChoice, fmt.Sprintf("%q is not a valid choice.", *raw))
	}
	return c
}

func validateStatus(raw string, verr *ValidationError) model.PayoutStatus {
	s := model.PayoutStatus(raw)
	if !s.Valid() {
		verr.add("status", CodeInvalidChoice, fmt.Sprintf("%q is not a valid choice.", raw))
	}
	return s
}

func validateComment(raw *string, verr *ValidationError) string {
	if raw == nil {
		return ""
	}
	if utf8.RuneCountInString(*raw) > model.CommentMaxLength {
		verr.add("comment", CodeMaxLength,
			fmt.Sprintf("Ensure this field has no more than %d characters.", model.CommentMaxLength))
	}
	return *raw
}

// validateRecipientDetails decodes raw as a JSON object and checks the
// card number. Numbers are kept as json.Number so the stored object
// round-trips unchanged.
func validateRecipientDetails(raw json.RawMessage, verr *ValidationError) model.RecipientDetails {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		verr.add("recipient_details", CodeRequired, "This field is required.")
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		verr.add("recipient_details", CodeNull, "This field may not be null.")
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var details model.RecipientDetails
	if trimmed[0] != '{' || dec.Decode(&details) != nil {
		verr.add("recipient_details", CodeInvalid, "Recipient details must be a JSON object.")
		return nil
	}

	card, ok := details["card_number"]
	if !ok || card == nil || card == "" {
		verr.add("recipient_details", CodeRequired, "Card number is required.")
		return details
	}
	if !ValidCardNumber(fmt.Sprint(card)) {
		verr.add("recipient_details", CodeInvalid, "Card number must consist of 16 digits.")
	}
	return details
}

// ValidCardNumber reports whether s is 16 digits once spaces are removed.
func ValidCardNumber(s string) bool {
	return cardNumberPattern.MatchString(strings.ReplaceAll(s, " ", ""))
}
