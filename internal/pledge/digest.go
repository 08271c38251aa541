package pledge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// PhoneHasher turns phone numbers into the one-way digests used as user ids.
// With a secret it computes HMAC-SHA256, otherwise plain SHA-256.
type PhoneHasher struct {
	secret []byte
}

func NewPhoneHasher(secret string) *PhoneHasher {
	return &PhoneHasher{secret: []byte(secret)}
}

func (h *PhoneHasher) Digest(phone string) string {
	normalized := NormalizePhone(phone)
	if len(h.secret) == 0 {
		sum := sha256.Sum256([]byte(normalized))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizePhone reduces a Kenyan MSISDN to the 2547XXXXXXXX form so the
// same subscriber always hashes to the same digest.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "254" + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		return "254" + digits
	}
	return digits
}

// RedactPhone keeps the country prefix and last two digits for logs.
func RedactPhone(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) <= 5 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:3] + strings.Repeat("*", len(digits)-5) + digits[len(digits)-2:]
}
