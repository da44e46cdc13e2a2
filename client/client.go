package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bartossh/Rollupis/block"
	"github.com/bartossh/Rollupis/httpclient"
	"github.com/bartossh/Rollupis/server"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/valyala/fasthttp"
)

// SequenceUnknown is returned together with an error when the rollup node could not tell its sequence.
const SequenceUnknown int64 = -2

const defaultTimeout = 5 * time.Second

var (
	ErrApiVersionMismatch            = fmt.Errorf("api version mismatch")
	ErrApiHeaderMismatch             = fmt.Errorf("api header mismatch")
	ErrServerReturnsInconsistentData = fmt.Errorf("server returns inconsistent data")
	ErrRejectedByServer              = fmt.Errorf("rejected by server")
	ErrEmptyServerURL                = fmt.Errorf("server url must be specified")
	ErrWrongTimeout                  = fmt.Errorf("timeout must not be negative")
)

// Config contains configuration of the rollup node REST client.
type Config struct {
	ServerURL      string `yaml:"server_url"`      // ServerURL is the root url of the rollup node, e.g. http://localhost:8080.
	AccessToken    string `yaml:"access_token"`    // AccessToken is sent in Authorization header when recording transactions.
	TimeoutSeconds int    `yaml:"timeout_seconds"` // TimeoutSeconds is a single request timeout, 0 means 5 seconds.
}

// Validate validates the client configuration.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return ErrEmptyServerURL
	}
	if c.TimeoutSeconds < 0 {
		return ErrWrongTimeout
	}
	return nil
}

type response[T any] struct {
	Code  int               `json:"code"`
	Data  T                 `json:"data"`
	Error *server.ErrorBody `json:"error"`
}

func (r response[T]) failure() error {
	if r.Error == nil {
		return nil
	}
	if r.Error.Param == "" {
		return errors.Join(ErrRejectedByServer, errors.New(r.Error.Msg))
	}
	return errors.Join(ErrRejectedByServer, fmt.Errorf("%s: %s", r.Error.Param, r.Error.Msg))
}

// Rest is a rest client for the rollup node API.
type Rest struct {
	apiRoot string
	token   string
	timeout time.Duration
}

// NewRest creates a new rest client.
func NewRest(c Config) (*Rest, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	timeout := defaultTimeout
	if c.TimeoutSeconds > 0 {
		timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	return &Rest{apiRoot: strings.TrimSuffix(c.ServerURL, "/"), token: c.AccessToken, timeout: timeout}, nil
}

// ValidateApiVersion makes a call to the API server and validates client and server API versions and header correctness.
func (r *Rest) ValidateApiVersion(ctx context.Context) error {
	timeout, err := r.deadline(ctx)
	if err != nil {
		return err
	}
	var alive server.AliveResponse
	if _, err := httpclient.MakeGet(timeout, r.url(server.AliveURL), &alive); err != nil {
		return err
	}

	if alive.APIVersion != server.ApiVersion {
		return errors.Join(ErrApiVersionMismatch, fmt.Errorf("expected %s but got %s", server.ApiVersion, alive.APIVersion))
	}

	if alive.APIHeader != server.Header {
		return errors.Join(ErrApiHeaderMismatch, fmt.Errorf("expected %s but got %s", server.Header, alive.APIHeader))
	}

	return nil
}

// SendTransaction records signed transaction in the rollup node.
// Returned status is the HTTP status of the response or 0 when the request never got one.
func (r *Rest) SendTransaction(ctx context.Context, trx *transaction.Transaction) (int, error) {
	timeout, err := r.deadline(ctx)
	if err != nil {
		return 0, err
	}
	var res response[server.RecordTransactionData]
	status, err := httpclient.MakePost(timeout, r.url(server.RecordTransactionURL), r.token, trx, &res)
	if err != nil {
		if ferr := res.failure(); ferr != nil {
			return status, errors.Join(err, ferr)
		}
		return status, err
	}
	if res.Data.Hash != trx.Hash {
		return status, errors.Join(
			ErrServerReturnsInconsistentData,
			fmt.Errorf("expected hash %s but got %s", trx.Hash, res.Data.Hash))
	}
	return status, nil
}

// Sequence reads the last sequence received by the rollup node, -1 when none was received yet.
func (r *Rest) Sequence(ctx context.Context) (int64, error) {
	timeout, err := r.deadline(ctx)
	if err != nil {
		return SequenceUnknown, err
	}
	var res response[server.SequenceData]
	if _, err := httpclient.MakeGet(timeout, r.url(server.SequenceURL), &res); err != nil {
		return SequenceUnknown, errors.Join(err, res.failure())
	}
	return res.Data.Sequence, nil
}

// LastBlock reads the newest block header, false if the node has not forged any block yet.
func (r *Rest) LastBlock(ctx context.Context) (block.Header, bool, error) {
	timeout, err := r.deadline(ctx)
	if err != nil {
		return block.Header{}, false, err
	}
	var res response[block.Header]
	status, err := httpclient.MakeGet(timeout, r.url(server.LastBlockURL), &res)
	if status == fasthttp.StatusNotFound {
		return block.Header{}, false, nil
	}
	if err != nil {
		return block.Header{}, false, errors.Join(err, res.failure())
	}
	return res.Data, true, nil
}

func (r *Rest) url(path string) string {
	return r.apiRoot + path
}

func (r *Rest) deadline(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := r.timeout
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}
