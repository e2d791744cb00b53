package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// upstreamErrorBody covers the two error shapes seen upstream: a flat
// {"message": "..."} and the nested {"error": {"code", "message"}} envelope.
type upstreamErrorBody struct {
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an error from the apperrors taxonomy:
//
//   - 404 becomes a NotFound AppError for resource/id
//   - 400 becomes an InvalidInput AppError carrying the upstream message
//   - anything else becomes a *apperrors.TransportError with the status
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, resource, id string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.Transport(resp.StatusCode, "read error body", err)
	}

	message := extractMessage(bodyBytes)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NotFound(resource, id)
	case http.StatusBadRequest:
		return apperrors.InvalidInput(fmt.Sprintf("%s: %s", resource, message))
	default:
		return apperrors.Transport(resp.StatusCode, message, nil)
	}
}

// extractMessage pulls a human-readable message out of an error body, falling
// back to the trimmed raw body when it is short plain text.
func extractMessage(body []byte) string {
	var parsed upstreamErrorBody
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	raw := strings.TrimSpace(string(body))
	if raw == "" || strings.HasPrefix(raw, "<") || len(raw) > 512 {
		return ""
	}
	return raw
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
