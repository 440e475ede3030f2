package pixkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want KeyType
	}{
		{"cpf", "12345678901", TypeCPF},
		{"cnpj", "12345678000195", TypeCNPJ},
		{"email", "troco@loja.com.br", TypeEmail},
		{"phone", "+5511987654321", TypePhone},
		{"random", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6", TypeRandom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NoMatch(t *testing.T) {
	for _, key := range []string{"", "abc", "123", "not an email", "+0123456789", "55 11 98765-4321"} {
		_, ok := Classify(key)
		assert.False(t, ok, "key %q should not classify", key)
	}
}

// An 11-digit string is ambiguous between CPF and a national phone
// number; the fixed priority order resolves it as CPF.
func TestClassify_PriorityOrder(t *testing.T) {
	got, ok := Classify("11987654321")
	require.True(t, ok)
	assert.Equal(t, TypeCPF, got)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("12345678901", TypeCPF))
	require.NoError(t, Validate("troco@loja.com.br", TypeEmail))

	err := Validate("12345678901", TypeEmail)
	require.ErrorIs(t, err, ErrInvalidKeyFormat)

	err = Validate("12345678901", KeyType("iban"))
	require.ErrorIs(t, err, ErrInvalidKeyFormat)
}

// Round-trip: a valid sample of each type classifies back to that type.
func TestValidateClassifyRoundTrip(t *testing.T) {
	samples := map[KeyType]string{
		TypeCPF:    "98765432100",
		TypeCNPJ:   "11222333000181",
		TypeEmail:  "merchant@example.org",
		TypePhone:  "+5521912345678",
		TypeRandom: "0f1e2d3c4b5a69788796a5b4c3d2e1f0",
	}

	for keyType, key := range samples {
		require.NoError(t, Validate(key, keyType))

		got, ok := Classify(key)
		require.True(t, ok)
		assert.Equal(t, keyType, got)
	}
}
