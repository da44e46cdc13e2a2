package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/exp/slices"
)

var (
	ErrStatusCodeMismatch  = fmt.Errorf("status code mismatch")
	ErrContentTypeMismatch = fmt.Errorf("content type mismatch")
)

// MakePost sends out as JSON body to the url with optional authorization token and decodes the response into in.
// The status code is returned even when the request failed on the server side, so the caller can act on it.
// Body of non 2xx response is still decoded into in when it is a JSON document. Pass nil in to skip decoding.
func MakePost(timeout time.Duration, url, token string, out, in any) (int, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, token)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return 0, err
	}
	req.SetBody(raw)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := fasthttp.DoTimeout(req, resp, timeout); err != nil {
		return 0, err
	}

	return resp.StatusCode(), decode(resp, in, fasthttp.StatusOK, fasthttp.StatusCreated, fasthttp.StatusAccepted)
}

// MakeGet requests the url and decodes the JSON response into in.
func MakeGet(timeout time.Duration, url string, in any) (int, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := fasthttp.DoTimeout(req, resp, timeout); err != nil {
		return 0, err
	}

	return resp.StatusCode(), decode(resp, in, fasthttp.StatusOK)
}

func decode(resp *fasthttp.Response, in any, accepted ...int) error {
	if resp.StatusCode() == fasthttp.StatusNoContent {
		return nil
	}

	var statusErr error
	if !slices.Contains(accepted, resp.StatusCode()) {
		statusErr = errors.Join(
			ErrStatusCodeMismatch,
			fmt.Errorf("expected status code %d but got %d", accepted[0], resp.StatusCode()))
	}

	contentType := resp.Header.Peek(fasthttp.HeaderContentType)
	if bytes.Index(contentType, []byte("application/json")) != 0 {
		if statusErr != nil {
			return statusErr
		}
		return errors.Join(
			ErrContentTypeMismatch,
			fmt.Errorf("expected content type application/json but got %s", contentType))
	}

	if in == nil {
		return statusErr
	}
	if err := json.Unmarshal(resp.Body(), in); err != nil {
		return errors.Join(statusErr, err)
	}
	return statusErr
}
