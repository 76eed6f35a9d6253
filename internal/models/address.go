package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a participant or operator identity in canonical form:
// lowercase, 0x-prefixed, 40 hex characters.
type Address string

// ParseAddress validates s and returns its canonical form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", NewError(CodeInvalidInput, "malformed address")
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return "", NewError(CodeInvalidInput, "zero address is not an identity")
	}
	return Address(strings.ToLower(addr.Hex())), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}
