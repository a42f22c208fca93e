// Package httputil provides JSON response helpers for the HTTP API
package httputil

import (
	"encoding/json"
	"net/http"
)

// HTTPError is the JSON body written for failed requests
type HTTPError struct {
	Error string `json:"error"`
}

// JSONResponse marshals data to JSON and writes it to w
func JSONResponse(w http.ResponseWriter, data interface{}) error {
	d, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(d)
	return err
}

// ErrResponse writes an error response with the default status text for code
func ErrResponse(w http.ResponseWriter, code int) {
	ErrMsgResponse(w, code, http.StatusText(code))
}

// ErrMsgResponse writes a JSON error response with a custom message
func ErrMsgResponse(w http.ResponseWriter, code int, msg string) {
	d, _ := json.Marshal(HTTPError{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(d) // nolint: errcheck
}
