package hashing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bartossh/Rollupis/serializer"
	"golang.org/x/crypto/sha3"
)

// Size is the Hash length in bytes.
const Size = 32

// ErrInvalidHash is returned when value cannot be decoded in to the Hash.
var ErrInvalidHash = errors.New("invalid hash")

// Hash is a Keccak-256 digest.
type Hash [Size]byte

// Zero is the empty hash.
var Zero Hash

// Sum returns Keccak-256 digest of all parts concatenated.
func Sum(parts ...[]byte) Hash {
	k := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		k.Write(p)
	}
	var h Hash
	copy(h[:], k.Sum(nil))
	return h
}

// Parse decodes 0x prefixed hex string in to the Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	raw, err := serializer.HexDecode(s)
	if err != nil {
		return h, errors.Join(ErrInvalidHash, err)
	}
	if len(raw) != Size {
		return h, errors.Join(ErrInvalidHash, fmt.Errorf("expected %d bytes, got %d", Size, len(raw)))
	}
	copy(h[:], raw)
	return h, nil
}

// String returns 0x prefixed lower case hex representation.
func (h Hash) String() string {
	return serializer.HexEncode(h[:])
}

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// MarshalJSON encodes the hash as hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the hash from hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Join(ErrInvalidHash, err)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Value implements driver.Valuer, hashes are persisted as text.
func (h Hash) Value() (driver.Value, error) {
	return h.String(), nil
}

// Scan implements sql.Scanner.
func (h *Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		p, err := Parse(v)
		if err != nil {
			return err
		}
		*h = p
	case []byte:
		p, err := Parse(string(v))
		if err != nil {
			return err
		}
		*h = p
	default:
		return errors.Join(ErrInvalidHash, fmt.Errorf("cannot scan %T", src))
	}
	return nil
}
