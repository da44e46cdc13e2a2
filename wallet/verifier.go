package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"

	"github.com/bartossh/Rollupis/serializer"
)

var (
	ErrInvalidAddressLength = errors.New("address of invalid length")
	ErrChecksumMismatch     = errors.New("address checksum is not equal")
	ErrVersionMismatch      = errors.New("address version is not supported")
	ErrHashCorrupted        = errors.New("hash is corrupted")
	ErrSignatureInvalid     = errors.New("message signature isn't valid")
)

// Helper verifies signatures knowing only the signer address.
type Helper struct{}

// NewVerifier creates new wallet Helper verifier.
func NewVerifier() Helper {
	return Helper{}
}

// AddressToPubKey extracts ed25519 public key from the address.
func (h Helper) AddressToPubKey(address string) (ed25519.PublicKey, error) {
	raw, err := serializer.Base58Decode([]byte(address))
	if err != nil {
		return nil, err
	}
	if len(raw) != 1+ed25519.PublicKeySize+checksumLength {
		return nil, ErrInvalidAddressLength
	}
	if raw[0] != version {
		return nil, ErrVersionMismatch
	}
	actual := raw[len(raw)-checksumLength:]
	payload := raw[:len(raw)-checksumLength]
	if !bytes.Equal(actual, checksum(payload)) {
		return nil, ErrChecksumMismatch
	}
	return ed25519.PublicKey(payload[1:]), nil
}

// Verify verifies that message is signed by the owner of the address and the digest is equal.
func (h Helper) Verify(message, signature []byte, hash [32]byte, address string) error {
	digest := sha256.Sum256(message)
	if !bytes.Equal(hash[:], digest[:]) {
		return ErrHashCorrupted
	}
	pubKey, err := h.AddressToPubKey(address)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pubKey, digest[:], signature) {
		return ErrSignatureInvalid
	}
	return nil
}
