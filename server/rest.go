package server

import (
	"fmt"
	"strconv"

	"github.com/bartossh/Rollupis/hashing"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/gofiber/fiber/v2"
)

const (
	msgAuthentication = "Authentication Error"
	msgMalformedBody  = "request body is malformed"
	msgInternal       = "internal server error"
	msgNotFound       = "not found"
)

// ErrorBody describes why the request failed.
type ErrorBody struct {
	Param string `json:"param,omitempty"`
	Msg   string `json:"msg"`
}

// Response is the envelope of every REST response. Code repeats the HTTP status.
type Response struct {
	Code  int        `json:"code"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// AliveResponse is a response for alive and version check.
type AliveResponse struct {
	Alive      bool   `json:"alive"`
	APIVersion string `json:"api_version"`
	APIHeader  string `json:"api_header"`
}

// RecordTransactionData is the data of the successful record response.
type RecordTransactionData struct {
	Hash hashing.Hash `json:"hash"`
}

// SequenceData is the data of the sequence response.
type SequenceData struct {
	Sequence int64 `json:"sequence"`
}

func reply(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Response{Code: fiber.StatusOK, Data: data})
}

func fail(c *fiber.Ctx, code int, param, msg string) error {
	return c.Status(code).JSON(Response{Code: code, Error: &ErrorBody{Param: param, Msg: msg}})
}

func (s *server) alive(c *fiber.Ctx) error {
	return c.JSON(
		AliveResponse{
			Alive:      true,
			APIVersion: ApiVersion,
			APIHeader:  Header,
		})
}

func (s *server) record(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) != s.token {
		s.log.Warn(fmt.Sprintf("server record, unauthorized request from %s", c.IP()))
		return fail(c, fiber.StatusUnauthorized, "", msgAuthentication)
	}

	var req RecordTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "", msgMalformedBody)
	}
	trx, verr := req.transaction()
	if verr != nil {
		return fail(c, fiber.StatusBadRequest, verr.param, verr.msg)
	}
	if err := trx.Verify(s.verifier); err != nil {
		s.log.Warn(fmt.Sprintf("server record, transaction sequence [ %d ] verification failed: %s", trx.Sequence, err))
		return fail(c, fiber.StatusBadRequest, paramSignature, msgSignatureInvalid)
	}
	if verr := req.matchHash(trx.Hash); verr != nil {
		return fail(c, fiber.StatusBadRequest, verr.param, verr.msg)
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	last, err := s.repo.LastReceivedSequence(c.Context())
	if err != nil {
		s.log.Error(fmt.Sprintf("server record, reading last sequence failed: %s", err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if trx.Sequence != last+1 {
		return fail(c, fiber.StatusBadRequest, paramSequence, fmt.Sprintf("sequence must be %d", last+1))
	}
	if err := s.repo.WriteTransactions(c.Context(), []transaction.Transaction{trx}); err != nil {
		s.log.Error(fmt.Sprintf("server record, writing transaction sequence [ %d ] failed: %s", trx.Sequence, err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if err := s.repo.WriteLastReceivedSequence(c.Context(), trx.Sequence); err != nil {
		s.log.Error(fmt.Sprintf("server record, writing last sequence [ %d ] failed: %s", trx.Sequence, err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}

	return reply(c, RecordTransactionData{Hash: trx.Hash})
}

func (s *server) sequence(c *fiber.Ctx) error {
	seq, err := s.repo.LastReceivedSequence(c.Context())
	if err != nil {
		s.log.Error(fmt.Sprintf("server sequence, reading last sequence failed: %s", err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	return reply(c, SequenceData{Sequence: seq})
}

func (s *server) transactionByHash(c *fiber.Ctx) error {
	h, err := hashing.Parse(c.Params("hash"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, paramHash, "hash must be 0x prefixed 32 bytes hex")
	}
	trx, ok, err := s.repo.ReadTransactionByHash(c.Context(), h)
	if err != nil {
		s.log.Error(fmt.Sprintf("server transaction by hash, reading %s failed: %s", h, err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, paramHash, msgNotFound)
	}
	return reply(c, trx)
}

func (s *server) blockByHeight(c *fiber.Ctx) error {
	height, err := strconv.ParseUint(c.Params("height"), 10, 64)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "height", "height can only be numbers")
	}
	h, ok, err := s.repo.ReadBlockByHeight(c.Context(), height)
	if err != nil {
		s.log.Error(fmt.Sprintf("server block by height, reading %d failed: %s", height, err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, "height", msgNotFound)
	}
	return reply(c, h)
}

func (s *server) lastBlock(c *fiber.Ctx) error {
	height, ok, err := s.repo.LastBlockHeight(c.Context())
	if err != nil {
		s.log.Error(fmt.Sprintf("server last block, reading height failed: %s", err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, "", msgNotFound)
	}
	h, ok, err := s.repo.ReadBlockByHeight(c.Context(), height)
	if err != nil {
		s.log.Error(fmt.Sprintf("server last block, reading %d failed: %s", height, err))
		return fail(c, fiber.StatusInternalServerError, "", msgInternal)
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, "", msgNotFound)
	}
	return reply(c, h)
}
