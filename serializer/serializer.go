package serializer

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

const hexPrefix = "0x"

// ErrMissingHexPrefix is returned when hex string is not prefixed with 0x.
var ErrMissingHexPrefix = errors.New("hex value must start with 0x")

// Base58Encode encodes byte array to base58 string.
func Base58Encode(input []byte) []byte {
	return []byte(base58.Encode(input))
}

// Base58Decode decodes base58 string to byte array.
func Base58Decode(input []byte) ([]byte, error) {
	return base58.Decode(string(input))
}

// HexEncode encodes bytes to the 0x prefixed lower case hex string.
func HexEncode(input []byte) string {
	return hexPrefix + hex.EncodeToString(input)
}

// HexDecode decodes 0x prefixed hex string.
func HexDecode(input string) ([]byte, error) {
	if !strings.HasPrefix(input, hexPrefix) {
		return nil, ErrMissingHexPrefix
	}
	return hex.DecodeString(input[len(hexPrefix):])
}
