package upstream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/papercomputeco/azrelay/pkg/llm"
	"github.com/papercomputeco/azrelay/pkg/sse"
)

// Result is the outcome of one upstream call. Exactly one of Body, Lines or
// Failure is set.
type Result struct {
	// Status is the upstream HTTP status, or 502 for transport failures.
	Status int

	// Body is the raw response of a successful non-streaming call.
	Body []byte

	// Lines reads the response of a successful streaming call.
	Lines *sse.LineReader

	// Failure describes a call that did not succeed.
	Failure *Failure

	body io.Closer
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool {
	return r.Failure == nil
}

// Close releases the upstream response body of a streaming call.
// It is safe to call on any Result.
func (r *Result) Close() error {
	if r.body == nil {
		return nil
	}
	return r.body.Close()
}

// Failure is a caller-facing upstream error.
type Failure struct {
	Status  int
	Message string
}

// Response returns the JSON body sent to the caller for f.
func (f *Failure) Response() llm.ErrorResponse {
	return llm.ErrorResponse{Error: f.Message}
}

const unexpectedPrefix = "An unexpected error occurred: "

func statusFailure(status int, model, endpoint string) *Failure {
	var msg string
	switch status {
	case http.StatusUnauthorized:
		msg = "Invalid token."
	case http.StatusNotFound:
		msg = fmt.Sprintf("Model %s has not been deployed yet.", model)
	case http.StatusTooManyRequests:
		msg = "The current quota has been exceeded."
	default:
		msg = unexpectedPrefix + fmt.Sprintf("%d %s for url: %s", status, http.StatusText(status), endpoint)
	}
	return &Failure{Status: status, Message: msg}
}

// TransportFailure is the 502 failure for an upstream call that broke before
// a usable response was read.
func TransportFailure(err error) *Failure {
	return &Failure{
		Status:  http.StatusBadGateway,
		Message: unexpectedPrefix + err.Error(),
	}
}

func transportFailure(err error) *Result {
	return &Result{
		Status:  http.StatusBadGateway,
		Failure: TransportFailure(err),
	}
}
