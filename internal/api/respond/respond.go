// Package respond writes the API's JSON bodies and error envelope.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/scoracle-settlement/internal/cache"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeBadRequest    Code = "BAD_REQUEST"
	CodeNotFound      Code = "NOT_FOUND"
	CodeRunInProgress Code = "RUN_IN_PROGRESS"
	CodeFault         Code = "SETTLEMENT_FAULT"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// ErrorResponse is the error envelope for every non-2xx answer.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of ErrorResponse.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code Code, message string) {
	ErrorDetail(w, status, code, message, "")
}

// ErrorDetail writes an error envelope with a detail string.
func ErrorDetail(w http.ResponseWriter, status int, code Code, message, detail string) {
	JSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Detail: detail}})
}

// JSON encodes v uncached.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Raw writes JSON that was already rendered, e.g. by Postgres, uncached.
func Raw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// Cached writes a cached item, or 304 when the client's If-None-Match
// already matches it. Clients must revalidate since a settlement pass can
// change the body at any time.
func Cached(w http.ResponseWriter, r *http.Request, it cache.Item, hit bool) {
	h := w.Header()
	h.Set("ETag", it.ETag)
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	maxAge := int(time.Until(it.Expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	h.Set("Cache-Control", "private, must-revalidate, max-age="+strconv.Itoa(maxAge))

	if cache.Matches(r.Header.Get("If-None-Match"), it.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(it.Data)
}
