package transaction

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/serializer"
	"github.com/shopspring/decimal"
)

var (
	ErrSignatureNotDecodable = errors.New("signature is not decodable")
	ErrHashMismatch          = errors.New("transaction hash does not match its content")
	ErrUnknownMethod         = errors.New("unknown payment method")
)

// Method is the payment method of the purchase.
type Method int

const (
	MethodCash    Method = iota // Cash or card payment.
	MethodMileage               // Mileage points payment.
	MethodToken                 // Token payment.
)

// Valid reports whether m is one of the known payment methods.
func (m Method) Valid() bool {
	return m >= MethodCash && m <= MethodToken
}

func (m Method) String() string {
	switch m {
	case MethodCash:
		return "cash"
	case MethodMileage:
		return "mileage"
	case MethodToken:
		return "token"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

type signer interface {
	Sign(message []byte) (digest [32]byte, signature []byte)
	Address() string
}

type verifier interface {
	Verify(message, signature []byte, hash [32]byte, address string) error
}

// Transaction is a single purchase record submitted to the rollup.
type Transaction struct {
	Sequence     int64           `json:"sequence"`
	PurchaseID   string          `json:"purchase_id"`
	Timestamp    int64           `json:"timestamp"`
	Amount       decimal.Decimal `json:"amount"`
	FranchiseeID string          `json:"franchisee_id"`
	UserEmail    string          `json:"user_email"`
	Method       Method          `json:"method"`
	Signer       string          `json:"signer"`
	Signature    string          `json:"signature"`
	Hash         hashing.Hash    `json:"hash"`
}

// New creates unsigned transaction.
func New(
	sequence int64, purchaseID string, timestamp int64, amount decimal.Decimal,
	franchiseeID, userEmail string, method Method,
) Transaction {
	return Transaction{
		Sequence:     sequence,
		PurchaseID:   purchaseID,
		Timestamp:    timestamp,
		Amount:       amount,
		FranchiseeID: franchiseeID,
		UserEmail:    userEmail,
		Method:       method,
	}
}

// Message returns canonical bytes covered by the signature.
// Signature and hash are not part of the message, the signer address is.
func (t *Transaction) Message() []byte {
	buf := make([]byte, 0, 256)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Sequence))
	buf = appendString(buf, t.PurchaseID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Timestamp))
	buf = appendString(buf, t.Amount.String())
	buf = appendString(buf, t.FranchiseeID)
	buf = appendString(buf, t.UserEmail)
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.Method))
	buf = appendString(buf, t.Signer)
	return buf
}

// Sign signs the transaction and sets signer, signature and hash.
func (t *Transaction) Sign(s signer) error {
	if !t.Method.Valid() {
		return ErrUnknownMethod
	}
	t.Signer = s.Address()
	_, signature := s.Sign(t.Message())
	t.Signature = serializer.HexEncode(signature)
	h, err := t.ComputeHash()
	if err != nil {
		return err
	}
	t.Hash = h
	return nil
}

// ComputeHash returns Keccak-256 of the message and the signature.
func (t *Transaction) ComputeHash() (hashing.Hash, error) {
	sig, err := serializer.HexDecode(t.Signature)
	if err != nil {
		return hashing.Zero, errors.Join(ErrSignatureNotDecodable, err)
	}
	return hashing.Sum(t.Message(), sig), nil
}

// Verify checks the signature against the signer address and the stored hash against the content.
func (t *Transaction) Verify(v verifier) error {
	sig, err := serializer.HexDecode(t.Signature)
	if err != nil {
		return errors.Join(ErrSignatureNotDecodable, err)
	}
	msg := t.Message()
	if err := v.Verify(msg, sig, sha256.Sum256(msg), t.Signer); err != nil {
		return err
	}
	if t.Hash != hashing.Sum(msg, sig) {
		return ErrHashMismatch
	}
	return nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
