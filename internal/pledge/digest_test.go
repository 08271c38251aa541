package pledge

import (
	"testing"

	"github.com/Jleagle/unmarshal-go"
	"github.com/stretchr/testify/assert"
)

func unmarshalString(s string) unmarshal.String { return unmarshal.String(s) }

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"254712345678":     "254712345678",
		"+254 712 345 678": "254712345678",
		"0712345678":       "254712345678",
		"712345678":        "254712345678",
		"0110345678":       "254110345678",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestDigest(t *testing.T) {
	plain := NewPhoneHasher("")
	keyed := NewPhoneHasher("s3cret")

	d := plain.Digest("254712345678")
	assert.Len(t, d, 64)
	assert.Equal(t, d, plain.Digest("0712345678"))
	assert.NotContains(t, d, "712345678")

	k := keyed.Digest("254712345678")
	assert.Len(t, k, 64)
	assert.NotEqual(t, d, k)
	assert.Equal(t, k, NewPhoneHasher("s3cret").Digest("+254712345678"))
	assert.NotEqual(t, k, NewPhoneHasher("other").Digest("254712345678"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "254*******78", RedactPhone("254712345678"))
	assert.Equal(t, "254*******78", RedactPhone("0712345678"))
	assert.Equal(t, "****", RedactPhone("1234"))
}
