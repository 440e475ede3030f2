package pixkey

import (
	"errors"
	"fmt"
	"regexp"
)

// KeyType identifies one of the five PIX key formats.
type KeyType string

const (
	TypeCPF    KeyType = "cpf"
	TypeCNPJ   KeyType = "cnpj"
	TypeEmail  KeyType = "email"
	TypePhone  KeyType = "phone"
	TypeRandom KeyType = "random"
)

var ErrInvalidKeyFormat = errors.New("invalid pix key format")

// Classification is tried in this fixed order; the first structural match
// wins. An all-digit key of length 11 is always a CPF, never a phone.
var patterns = []struct {
	keyType KeyType
	re      *regexp.Regexp
}{
	{TypeCPF, regexp.MustCompile(`^\d{11}$`)},
	{TypeCNPJ, regexp.MustCompile(`^\d{14}$`)},
	{TypeEmail, regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)},
	{TypePhone, regexp.MustCompile(`^\+[1-9]\d{7,14}$`)},
	{TypeRandom, regexp.MustCompile(`^[a-zA-Z0-9]{32}$`)},
}

// Classify returns the type of the first pattern the key matches, or
// false when the key matches no PIX key format.
func Classify(key string) (KeyType, bool) {
	for _, p := range patterns {
		if p.re.MatchString(key) {
			return p.keyType, true
		}
	}

	return "", false
}

// Validate checks a key against an explicitly asserted type, for callers
// that supply the type instead of relying on inference.
func Validate(key string, keyType KeyType) error {
	for _, p := range patterns {
		if p.keyType == keyType {
			if !p.re.MatchString(key) {
				return fmt.Errorf("%w: key does not match type %q", ErrInvalidKeyFormat, keyType)
			}
			return nil
		}
	}

	return fmt.Errorf("%w: unknown key type %q", ErrInvalidKeyFormat, keyType)
}
