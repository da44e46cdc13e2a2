package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/shopspring/decimal"
)

const (
	paramSequence     = "sequence"
	paramPurchaseID   = "purchase_id"
	paramTimestamp    = "timestamp"
	paramAmount       = "amount"
	paramFranchiseeID = "franchisee_id"
	paramUserEmail    = "user_email"
	paramMethod       = "method"
	paramSigner       = "signer"
	paramSignature    = "signature"
	paramHash         = "hash"
)

const (
	msgMethodType       = `method input type error ,Enter "0" for cash or card or "1" for mileage or "2" for token`
	msgSignatureInvalid = "The signature value entered is not valid."
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// RecordTransactionRequest is the body of the record transaction request.
// Numeric fields are kept raw so each field can be validated with its own message.
type RecordTransactionRequest struct {
	Sequence     json.RawMessage `json:"sequence"`
	PurchaseID   string          `json:"purchase_id"`
	Timestamp    json.RawMessage `json:"timestamp"`
	Amount       json.RawMessage `json:"amount"`
	FranchiseeID string          `json:"franchisee_id"`
	UserEmail    string          `json:"user_email"`
	Method       json.RawMessage `json:"method"`
	Signer       string          `json:"signer"`
	Signature    string          `json:"signature"`
	Hash         string          `json:"hash"`
}

type validationError struct {
	param string
	msg   string
}

func required(param string) *validationError {
	return &validationError{param: param, msg: param + " is a required value"}
}

func onlyNumbers(param string) *validationError {
	return &validationError{param: param, msg: param + " can only be numbers"}
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`))
}

func parseInteger(param string, raw json.RawMessage) (int64, *validationError) {
	if absent(raw) {
		return 0, required(param)
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil || v < 0 {
		return 0, onlyNumbers(param)
	}
	return v, nil
}

func (r *RecordTransactionRequest) transaction() (transaction.Transaction, *validationError) {
	var trx transaction.Transaction
	var verr *validationError

	if trx.Sequence, verr = parseInteger(paramSequence, r.Sequence); verr != nil {
		return trx, verr
	}

	if r.PurchaseID == "" {
		return trx, required(paramPurchaseID)
	}
	trx.PurchaseID = r.PurchaseID

	if trx.Timestamp, verr = parseInteger(paramTimestamp, r.Timestamp); verr != nil {
		return trx, verr
	}

	if absent(r.Amount) {
		return trx, required(paramAmount)
	}
	var amount string
	if err := json.Unmarshal(r.Amount, &amount); err != nil || !amountPattern.MatchString(amount) {
		return trx, &validationError{param: paramAmount, msg: "amount can only be numbers type string"}
	}
	trx.Amount = decimal.RequireFromString(amount)

	if r.FranchiseeID == "" {
		return trx, required(paramFranchiseeID)
	}
	trx.FranchiseeID = r.FranchiseeID

	if r.UserEmail == "" {
		return trx, required(paramUserEmail)
	}
	if _, err := mail.ParseAddress(r.UserEmail); err != nil {
		return trx, &validationError{param: paramUserEmail, msg: "user_email is not a valid email address"}
	}
	trx.UserEmail = r.UserEmail

	if absent(r.Method) {
		return trx, required(paramMethod)
	}
	var method int
	if err := json.Unmarshal(r.Method, &method); err != nil || !transaction.Method(method).Valid() {
		return trx, &validationError{param: paramMethod, msg: msgMethodType}
	}
	trx.Method = transaction.Method(method)

	if r.Signer == "" {
		return trx, required(paramSigner)
	}
	trx.Signer = r.Signer

	if r.Signature == "" {
		return trx, required(paramSignature)
	}
	trx.Signature = r.Signature

	h, err := trx.ComputeHash()
	if err != nil {
		return trx, &validationError{param: paramSignature, msg: msgSignatureInvalid}
	}
	trx.Hash = h

	return trx, nil
}

// matchHash checks the optional hash claimed by the client against the computed one.
func (r *RecordTransactionRequest) matchHash(h hashing.Hash) *validationError {
	if r.Hash == "" {
		return nil
	}
	claimed, err := hashing.Parse(r.Hash)
	if err != nil || claimed != h {
		return &validationError{param: paramHash, msg: fmt.Sprintf("hash does not match transaction content, expected %s", h)}
	}
	return nil
}
