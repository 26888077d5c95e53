// Package jsonerr renders HTTP errors as a JSON body.
package jsonerr

import (
	"encoding/json"
	"net/http"
)

// Response is the error body every API endpoint emits.
type Response struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	// Details must be json serializable or expect errors.
	Details any    `json:"details,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Error works like http.Error but writes a Response as the body. Like
// http.Error you will still need to call a naked return in the http
// handler.
func Error(w http.ResponseWriter, req *http.Request, msg string, httpcode int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpcode)
	b, _ := json.Marshal(&Response{
		Error:      msg,
		StatusCode: httpcode,
		Details:    details,
		Path:       req.URL.Path,
	})
	w.Write(b)
}
