package orchestrator

import "net/http"

// httpError carries an explicit status code for the API layer.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string   { return e.msg }
func (e *httpError) StatusCode() int { return e.code }

func badRequest(msg string) error { return &httpError{code: http.StatusBadRequest, msg: msg} }
func conflict(msg string) error   { return &httpError{code: http.StatusConflict, msg: msg} }
