package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	evmAddressHexLen    = 40
	solanaAddressLength = 32
)

// ValidateAddress rejects identifiers that cannot name a token: empty values,
// 0x-prefixed values that are not hex or exceed 20 bytes, and anything else
// that is not base58 or decodes to more than 32 bytes.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty contract address", ErrInvalidInput)
	}
	if isHexAddress(address) {
		body := address[2:]
		if body == "" || len(body) > evmAddressHexLen {
			return fmt.Errorf("%w: evm address %q must have 1-%d hex digits", ErrInvalidInput, address, evmAddressHexLen)
		}
		if len(body)%2 == 1 {
			body = "0" + body
		}
		if _, err := hex.DecodeString(body); err != nil {
			return fmt.Errorf("%w: evm address %q is not hex", ErrInvalidInput, address)
		}
		return nil
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: address %q is neither hex nor base58", ErrInvalidInput, address)
	}
	if len(decoded) == 0 || len(decoded) > solanaAddressLength {
		return fmt.Errorf("%w: base58 address %q decodes to %d bytes", ErrInvalidInput, address, len(decoded))
	}
	return nil
}

// SameAddress reports whether a and b name the same token.
// Hex addresses compare case-insensitively; base58 is case-sensitive.
func SameAddress(a, b string) bool {
	if isHexAddress(a) && isHexAddress(b) {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func isHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}
