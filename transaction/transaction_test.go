package transaction

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type testSignerMock struct{}

func (th testSignerMock) Sign(message []byte) (digest [32]byte, signature []byte) {
	return [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, []byte("signature")
}

func (th testSignerMock) Address() string {
	return "thisisaddress"
}

type testVerifierMock struct {
	err error
}

func (tv testVerifierMock) Verify(message, signature []byte, hash [32]byte, address string) error {
	return tv.err
}

func sample() Transaction {
	return New(0, "123456789", 1668044556, decimal.RequireFromString("12300"), "a5c19fed89739383", "a@example.com", MethodMileage)
}

func TestTransactionSign(t *testing.T) {
	trx := sample()
	err := trx.Sign(testSignerMock{})
	assert.Nil(t, err)
	assert.Equal(t, "thisisaddress", trx.Signer)
	assert.Equal(t, "0x7369676e6174757265", trx.Signature)
	assert.False(t, trx.Hash.IsZero())

	h, err := trx.ComputeHash()
	assert.Nil(t, err)
	assert.Equal(t, h, trx.Hash)
}

func TestTransactionSignUnknownMethod(t *testing.T) {
	trx := sample()
	trx.Method = Method(9)
	err := trx.Sign(testSignerMock{})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestTransactionHashDependsOnContent(t *testing.T) {
	a := sample()
	assert.Nil(t, a.Sign(testSignerMock{}))
	b := sample()
	b.Sequence = 1
	assert.Nil(t, b.Sign(testSignerMock{}))
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestTransactionVerifyWithWallet(t *testing.T) {
	w, err := wallet.New()
	assert.Nil(t, err)

	trx := sample()
	assert.Nil(t, trx.Sign(&w))
	assert.Equal(t, w.Address(), trx.Signer)
	assert.Nil(t, trx.Verify(wallet.NewVerifier()))
}

func TestTransactionVerifyTamperedContent(t *testing.T) {
	w, err := wallet.New()
	assert.Nil(t, err)

	trx := sample()
	assert.Nil(t, trx.Sign(&w))
	trx.Amount = decimal.RequireFromString("99999")
	assert.NotNil(t, trx.Verify(wallet.NewVerifier()))
}

func TestTransactionVerifyTamperedHash(t *testing.T) {
	trx := sample()
	assert.Nil(t, trx.Sign(testSignerMock{}))
	trx.Hash = hashing.Sum([]byte("other"))
	assert.ErrorIs(t, trx.Verify(testVerifierMock{}), ErrHashMismatch)
}

func TestTransactionVerifyPropagatesVerifierError(t *testing.T) {
	trx := sample()
	assert.Nil(t, trx.Sign(testSignerMock{}))
	verr := errors.New("bad signature")
	assert.ErrorIs(t, trx.Verify(testVerifierMock{err: verr}), verr)
}

func TestTransactionVerifyNotDecodableSignature(t *testing.T) {
	trx := sample()
	trx.Signature = "nothex"
	assert.ErrorIs(t, trx.Verify(testVerifierMock{}), ErrSignatureNotDecodable)
}

func TestTransactionJSONFieldNames(t *testing.T) {
	trx := sample()
	assert.Nil(t, trx.Sign(testSignerMock{}))

	raw, err := json.Marshal(trx)
	assert.Nil(t, err)

	var m map[string]any
	assert.Nil(t, json.Unmarshal(raw, &m))
	for _, k := range []string{
		"sequence", "purchase_id", "timestamp", "amount", "franchisee_id",
		"user_email", "method", "signer", "signature", "hash",
	} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, "12300", m["amount"])
	assert.Equal(t, trx.Hash.String(), m["hash"])
}

func TestMethodValid(t *testing.T) {
	assert.True(t, MethodCash.Valid())
	assert.True(t, MethodMileage.Valid())
	assert.True(t, MethodToken.Valid())
	assert.False(t, Method(3).Valid())
	assert.False(t, Method(-1).Valid())
}
