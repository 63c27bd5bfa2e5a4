package httpx

import (
	"encoding/json"
	"net/http"
)

// Result is the envelope returned by every core operation.
type Result[T any] struct {
	Success    bool   `json:"success"`
	Data       *T     `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode"`
}

// OK wraps a successful value.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data, StatusCode: http.StatusOK}
}

// Fail wraps err with its mapped status code.
func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: PublicMessage(err), StatusCode: StatusFor(err)}
}

// From builds the envelope from a value/error pair.
func From[T any](data T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return OK(data)
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
