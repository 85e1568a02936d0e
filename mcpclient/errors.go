package mcpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mcpwire/mcpwire/httpresp"
	"github.com/mcpwire/mcpwire/internal/jsonrpc"
)

// maxErrorBodyBytes caps how much of a native error response body the client
// retains for the error message.
const maxErrorBodyBytes = 1 << 20

// RPCError is an ordinary JSON-RPC error returned by the server.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// HTTPResponseError reports that the server answered a request with an HTTP
// response rather than a JSON-RPC result. It is produced on two paths:
//
//   - Native: the POST itself came back as a non-2xx, non-JSON-RPC HTTP
//     response. Headers preserve their full multiplicity and Response is the
//     genuine *http.Response (body already consumed into Body).
//   - Synthesized: a JSON-RPC error carried the originalHttpResponse payload.
//     Header names arrive lowercased with multi-valued fields joined by
//     ", ", so Headers holds one value per name. Response is rebuilt from
//     the payload.
type HTTPResponseError struct {
	Status     int
	StatusText string
	Body       string
	Headers    http.Header
	Response   *http.Response

	message string
}

func (e *HTTPResponseError) Error() string { return e.message }

// newNativeHTTPError consumes resp's body and wraps it. The caller must not
// use resp.Body afterwards.
func newNativeHTTPError(resp *http.Response) *HTTPResponseError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body = io.NopCloser(bytes.NewReader(body))

	// resp.Status carries the wire reason phrase ("401 Unauthorized").
	statusText := strings.TrimPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}
	detail := string(body)
	if detail == "" {
		detail = statusText
	}
	return &HTTPResponseError{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Body:       string(body),
		Headers:    resp.Header,
		Response:   resp,
		message:    fmt.Sprintf("Error POSTing to endpoint (HTTP %d): %s", resp.StatusCode, detail),
	}
}

// errorFromRPC maps a JSON-RPC error object to a Go error. Errors carrying a
// well-formed originalHttpResponse payload become HTTPResponseError; anything
// else, including payloads that merely resemble one, stays an RPCError.
func errorFromRPC(rpcErr *jsonrpc.Error) error {
	data, ok := httpresp.ParseErrorData(rpcErr.Data)
	if !ok {
		return &RPCError{Code: int(rpcErr.Code), Message: rpcErr.Message}
	}

	header := make(http.Header, len(data.Headers))
	for name, value := range data.Headers {
		header.Set(name, value)
	}
	body := ""
	if data.Body != nil {
		body = *data.Body
	}
	return &HTTPResponseError{
		Status:     data.Status,
		StatusText: data.StatusText,
		Body:       body,
		Headers:    header,
		Response: &http.Response{
			StatusCode: data.Status,
			Status:     fmt.Sprintf("%d %s", data.Status, data.StatusText),
			Header:     header,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		},
		message: fmt.Sprintf("MCP error %d: %s", rpcErr.Code, rpcErr.Message),
	}
}

// IsHTTPResponseError reports whether err carries an HTTP response thrown by
// the server, on either the native or the synthesized path.
func IsHTTPResponseError(err error) bool {
	var hr *HTTPResponseError
	return errors.As(err, &hr)
}

// InfoType discriminates ExtractHTTPErrorInfo results.
type InfoType int

const (
	// InfoHTTPResponse means the error carries a server-thrown HTTP response.
	InfoHTTPResponse InfoType = iota + 1
	// InfoOtherError means the error is anything else (or nil).
	InfoOtherError
)

// Info is the extracted view of an error. When Type is InfoHTTPResponse the
// HTTP fields are populated; otherwise Err holds the original error.
type Info struct {
	Type       InfoType
	Status     int
	StatusText string
	Body       string
	Headers    http.Header
	Response   *http.Response
	Err        error
}

// ExtractHTTPErrorInfo classifies err for callers that branch on whether the
// server threw an HTTP response.
func ExtractHTTPErrorInfo(err error) Info {
	var hr *HTTPResponseError
	if errors.As(err, &hr) {
		return Info{
			Type:       InfoHTTPResponse,
			Status:     hr.Status,
			StatusText: hr.StatusText,
			Body:       hr.Body,
			Headers:    hr.Headers,
			Response:   hr.Response,
		}
	}
	return Info{Type: InfoOtherError, Err: err}
}
