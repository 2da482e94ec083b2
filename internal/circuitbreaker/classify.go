package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// statusError is implemented by errors that carry an HTTP status code.
type statusError interface {
	HTTPStatus() int
}

// rpcError is implemented by JSON-RPC error responses.
type rpcError interface {
	RPCCode() int
}

// Classify returns the weight an outcome contributes to the error rate.
//
//   - nil, caller cancellation -> 0
//   - contract execution errors (reverts, code 3 and -32000) -> 0
//   - HTTP 429, JSON-RPC -32005 (node rate limit) -> 0.5
//   - HTTP 5xx, other JSON-RPC errors, network errors -> 1.0
//   - timeouts -> 1.5
func Classify(err error) float64 {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}

	var se statusError
	if errors.As(err, &se) {
		code := se.HTTPStatus()
		switch {
		case code == 429:
			return 0.5
		case code >= 500:
			return 1.0
		default:
			return 0
		}
	}

	var re rpcError
	if errors.As(err, &re) {
		switch re.RPCCode() {
		case 3, -32000:
			return 0
		case -32005:
			return 0.5
		default:
			return 1.0
		}
	}
	return 1.0
}
