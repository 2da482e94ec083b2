package chain

import (
	"fmt"

	kycgate "github.com/eugener/kycgate/internal"
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("chain: %s: rpc error %d: %s (%s)", e.Method, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("chain: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// RPCCode returns the JSON-RPC error code.
func (e *RPCError) RPCCode() int { return e.Code }

// Unwrap lets callers match upstream failures with errors.Is.
func (e *RPCError) Unwrap() error { return kycgate.ErrUpstream }

// HTTPError is a non-200 response from the node endpoint.
type HTTPError struct {
	Method string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chain: %s: http %d: %s", e.Method, e.Status, e.Body)
}

// HTTPStatus returns the HTTP status code.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// Unwrap lets callers match upstream failures with errors.Is.
func (e *HTTPError) Unwrap() error { return kycgate.ErrUpstream }
