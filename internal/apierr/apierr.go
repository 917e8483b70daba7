// Package apierr carries the request-level error type shared by the
// normalizer, the query engine and the handlers.
package apierr

import "fmt"

// BadRequest is a user-facing 400-class error. The message is the contract:
// it must name the offending field, attribute or id.
type BadRequest struct {
	Message string
}

func (e BadRequest) Error() string { return e.Message }

func BadRequestf(format string, args ...any) BadRequest {
	return BadRequest{Message: fmt.Sprintf(format, args...)}
}
