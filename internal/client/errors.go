package client

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

type ErrorKind int

const (
	// KindNetwork: the server could not be reached.
	KindNetwork ErrorKind = iota + 1
	// KindHTTP: the server answered with a non-2xx status.
	KindHTTP
	// KindDecode: a 2xx body could not be decoded.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// FetchError is every failure of a call to the portal API. Callers can tell
// an empty result from a failed one, and a refused booking from an outage.
type FetchError struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

func IsConflict(err error) bool { return StatusOf(err) == http.StatusConflict }

func networkError(op string, err error) *FetchError {
	return &FetchError{Kind: KindNetwork, Op: op, Message: "cannot reach server", Err: err}
}

func decodeError(op string, err error) *FetchError {
	return &FetchError{Kind: KindDecode, Op: op, Message: "unexpected response from server", Err: err}
}

// fallbackMessages are shown when an error response has no usable body.
var fallbackMessages = map[string]string{
	"list medicos":          "could not load doctors",
	"list disponibilidad":   "could not load availability",
	"create disponibilidad": "could not save availability",
	"horarios disponibles":  "could not load free slots",
	"list citas":            "could not load appointments",
	"create cita":           "could not book the appointment",
	"update cita":           "could not update the appointment",
	"list turnos":           "could not load shifts",
	"create turno":          "could not create the shift",
	"update turno":          "could not update the shift",
	"delete turno":          "could not delete the shift",
	"list solicitudes":      "could not load shift change requests",
	"create solicitud":      "could not submit the request",
	"resolve solicitud":     "could not resolve the request",
	"list historial":        "could not load clinical records",
	"create historial":      "could not save the clinical record",
	"estadisticas":          "could not load statistics",
}

// httpError builds the error for a non-2xx response. The message is the
// body's "detail" or "error" field, else the operation's fallback message,
// else the status code.
func httpError(op string, status int, body []byte) *FetchError {
	fe := &FetchError{Kind: KindHTTP, Op: op, Status: status}
	var parsed struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &parsed) == nil {
		switch d := parsed.Detail.(type) {
		case string:
			fe.Message = d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				fe.Message = string(b)
			}
		}
		if fe.Message == "" {
			fe.Message = parsed.Error
		}
		if fe.Message == "" {
			fe.Message = parsed.Message
		}
	}
	if fe.Message == "" {
		fe.Message = fallbackMessages[op]
	}
	if fe.Message == "" {
		fe.Message = fmt.Sprintf("HTTP %d", status)
	}
	return fe
}
