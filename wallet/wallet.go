package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"github.com/bartossh/Rollupis/serializer"
)

const (
	checksumLength = 4
	version        = byte(0x00)
)

const (
	pemPrivateType = "PRIVATE KEY"
	pemPublicType  = "PUBLIC KEY"
	publicSuffix   = ".pub"
)

var (
	ErrPemDecodeFailed = errors.New("cannot decode key from PEM format")
	ErrKeyCastFailed   = errors.New("cannot cast x509 decoded key to ed25519 key")
	ErrKeysMismatch    = errors.New("public key does not belong to private key")
)

// Wallet holds the signing keys of the franchisee submitting transactions to the rollup.
type Wallet struct {
	Private ed25519.PrivateKey `json:"private"`
	Public  ed25519.PublicKey  `json:"public"`
}

// New creates a new Wallet with a fresh ed25519 key pair.
func New() (Wallet, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Private: private, Public: public}, nil
}

// SaveToPem saves wallet keys in PEM format.
// Private key is saved under the given path and public key under path with .pub suffix.
func (w *Wallet) SaveToPem(path string) error {
	prv, err := x509.MarshalPKCS8PrivateKey(w.Private)
	if err != nil {
		return err
	}
	pub, err := x509.MarshalPKIXPublicKey(w.Public)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: pemPrivateType, Bytes: prv}), 0600); err != nil {
		return err
	}
	return os.WriteFile(path+publicSuffix, pem.EncodeToMemory(&pem.Block{Type: pemPublicType, Bytes: pub}), 0644)
}

// ReadFromPem reads Wallet saved by SaveToPem. Provide the path without the .pub suffix.
func ReadFromPem(path string) (Wallet, error) {
	rawPub, err := os.ReadFile(path + publicSuffix)
	if err != nil {
		return Wallet{}, err
	}
	rawPrv, err := os.ReadFile(path)
	if err != nil {
		return Wallet{}, err
	}

	blockPub, _ := pem.Decode(rawPub)
	if blockPub == nil || blockPub.Type != pemPublicType {
		return Wallet{}, ErrPemDecodeFailed
	}
	pub, err := x509.ParsePKIXPublicKey(blockPub.Bytes)
	if err != nil {
		return Wallet{}, err
	}
	blockPrv, _ := pem.Decode(rawPrv)
	if blockPrv == nil || blockPrv.Type != pemPrivateType {
		return Wallet{}, ErrPemDecodeFailed
	}
	prv, err := x509.ParsePKCS8PrivateKey(blockPrv.Bytes)
	if err != nil {
		return Wallet{}, err
	}

	var w Wallet
	var ok bool
	if w.Public, ok = pub.(ed25519.PublicKey); !ok {
		return Wallet{}, ErrKeyCastFailed
	}
	if w.Private, ok = prv.(ed25519.PrivateKey); !ok {
		return Wallet{}, ErrKeyCastFailed
	}
	if !bytes.Equal(w.Private.Public().(ed25519.PublicKey), w.Public) {
		return Wallet{}, ErrKeysMismatch
	}
	return w, nil
}

// Address creates base58 address from the wallet version, public key and checksum.
func (w *Wallet) Address() string {
	vers := append([]byte{version}, w.Public...)
	full := append(vers, checksum(vers)...)
	return string(serializer.Base58Encode(full))
}

// Sign signs sha256 digest of the message with ed25519.
// Returns the digest and the signature.
func (w *Wallet) Sign(message []byte) (digest [32]byte, signature []byte) {
	digest = sha256.Sum256(message)
	signature = ed25519.Sign(w.Private, digest[:])
	return digest, signature
}

// Verify verifies message signature and digest against the wallet public key.
func (w *Wallet) Verify(message, signature []byte, hash [32]byte) bool {
	digest := sha256.Sum256(message)
	if !bytes.Equal(hash[:], digest[:]) {
		return false
	}
	return ed25519.Verify(w.Public, digest[:], signature)
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
