package pledge

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jleagle/unmarshal-go"
	"go.uber.org/zap/zapcore"
)

// PledgeAmount is the exact payment, in shillings, that makes a pledge.
const PledgeAmount = 1.00

var (
	ErrMalformedPayload      = errors.New("malformed payload")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnauthorizedShortcode = errors.New("unauthorized shortcode")
	ErrMissingCounty         = errors.New("missing county")
	ErrUnknownCounty         = errors.New("unknown county")
)

// VerificationError says why a notification was rejected. Field names the
// offending field and Value carries a safe-to-log value, never the MSISDN.
type VerificationError struct {
	Err   error
	Field string
	Value string
}

func (e *VerificationError) Error() string {
	switch {
	case e.Value != "":
		return fmt.Sprintf("%s: %s=%q", e.Err, e.Field, e.Value)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Err, e.Field)
	}
	return e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Notification is a C2B payment notification. MPESA and the simulators in
// front of it send numeric fields both as strings and as numbers.
type Notification struct {
	TransactionType   unmarshal.String `json:"TransactionType"`
	TransID           unmarshal.String `json:"TransID"`
	TransTime         unmarshal.String `json:"TransTime"`
	TransAmount       unmarshal.String `json:"TransAmount"`
	BusinessShortCode unmarshal.String `json:"BusinessShortCode"`
	BillRefNumber     unmarshal.String `json:"BillRefNumber"`
	InvoiceNumber     unmarshal.String `json:"InvoiceNumber"`
	OrgAccountBalance unmarshal.String `json:"OrgAccountBalance"`
	ThirdPartyTransID unmarshal.String `json:"ThirdPartyTransID"`
	MSISDN            unmarshal.String `json:"MSISDN"`
	FirstName         unmarshal.String `json:"FirstName"`
	MiddleName        unmarshal.String `json:"MiddleName"`
	LastName          unmarshal.String `json:"LastName"`
}

// Verified holds the normalized fields of an accepted notification.
type Verified struct {
	TransactionID   string
	TransactionType string
	TransactionTime string
	Amount          float64
	County          string
	PhoneNumber     string
}

// MarshalLogObject logs the notification with the phone number redacted.
func (v Verified) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("transaction_id", v.TransactionID)
	enc.AddString("county", v.County)
	enc.AddFloat64("amount", v.Amount)
	enc.AddString("phone", RedactPhone(v.PhoneNumber))
	return nil
}

// amountPattern is the shilling amount format MPESA sends: digits with at
// most two decimals.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

// Verifier validates payment notifications against the business rules. It
// has no side effects.
type Verifier struct {
	shortCode string
}

func NewVerifier(shortCode string) *Verifier {
	return &Verifier{shortCode: strings.TrimSpace(shortCode)}
}

func (v *Verifier) Verify(n Notification) (Verified, error) {
	required := []struct {
		name  string
		value string
	}{
		{"TransactionType", string(n.TransactionType)},
		{"TransID", string(n.TransID)},
		{"TransTime", string(n.TransTime)},
		{"TransAmount", string(n.TransAmount)},
		{"BusinessShortCode", string(n.BusinessShortCode)},
		{"MSISDN", string(n.MSISDN)},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return Verified{}, &VerificationError{Err: ErrMalformedPayload, Field: f.name}
		}
	}

	amountText := strings.TrimSpace(string(n.TransAmount))
	if !amountPattern.MatchString(amountText) {
		return Verified{}, &VerificationError{Err: ErrInvalidAmount, Field: "TransAmount", Value: amountText}
	}
	amount, err := strconv.ParseFloat(amountText, 64)
	if err != nil || amount != PledgeAmount {
		return Verified{}, &VerificationError{Err: ErrInvalidAmount, Field: "TransAmount", Value: amountText}
	}

	if strings.TrimSpace(string(n.BusinessShortCode)) != v.shortCode {
		return Verified{}, &VerificationError{Err: ErrUnauthorizedShortcode, Field: "BusinessShortCode"}
	}

	countyText := strings.TrimSpace(string(n.BillRefNumber))
	if countyText == "" {
		countyText = strings.TrimSpace(string(n.InvoiceNumber))
	}
	if countyText == "" {
		return Verified{}, &VerificationError{Err: ErrMissingCounty, Field: "BillRefNumber"}
	}
	county, ok := CanonicalCounty(countyText)
	if !ok {
		return Verified{}, &VerificationError{Err: ErrUnknownCounty, Field: "BillRefNumber", Value: countyText}
	}

	return Verified{
		TransactionID:   strings.TrimSpace(string(n.TransID)),
		TransactionType: strings.TrimSpace(string(n.TransactionType)),
		TransactionTime: strings.TrimSpace(string(n.TransTime)),
		Amount:          amount,
		County:          county,
		PhoneNumber:     strings.TrimSpace(string(n.MSISDN)),
	}, nil
}

// IsValidationError reports whether err is a client-side payload problem.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingCounty) ||
		errors.Is(err, ErrUnknownCounty)
}
