package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

// backendErrorResponse mirrors the error envelope returned by the
// marketplace backend.
type backendErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into a typed error. Structured backend error envelopes keep their code and
// message; anything else becomes a generic RequestFailed of the appropriate
// kind. The response body is fully consumed and closed.
//
// Authorization failures never reach this function; Client.Do intercepts
// them first.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.RequestFailed(apperrors.KindMalformed,
			fmt.Sprintf("status %d with unreadable body", resp.StatusCode), err)
	}

	return parseErrorBody(resp.StatusCode, bodyBytes)
}

// parseErrorBody turns a non-2xx status and its body into a typed error,
// whether the body came from a live response or rode in on a transport
// error that already consumed it.
func parseErrorBody(status int, body []byte) error {
	var backend backendErrorResponse
	if json.Unmarshal(body, &backend) == nil && backend.Error != nil {
		return &apperrors.ClientError{
			Code:    backend.Error.Code,
			Message: backend.Error.Message,
			Kind:    apperrors.KindServer,
			Status:  status,
		}
	}

	return &apperrors.ClientError{
		Code:    "REQUEST_FAILED",
		Message: fmt.Sprintf("status %d: %s", status, string(body)),
		Kind:    apperrors.KindServer,
		Status:  status,
	}
}

// StatusOf extracts the HTTP status carried by an error, or 0 when the error
// did not originate in a backend response.
func StatusOf(err error) int {
	var ce *apperrors.ClientError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}
