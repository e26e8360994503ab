package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// User facing messages.
const (
	msgInternalError  = "Erro interno do servidor."
	msgRouteNotFound  = "Rota não encontrada."
	msgInvalidRequest = "Pedido inválido."
)

const maxJSONBodyBytes = 25 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the payload of every error response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// decodeJSON reads a JSON object body. An empty body decodes as {}.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

// text accepts a JSON string or number and keeps it as a string. Other values
// decode as empty.
type text string

func (t text) trim() text {
	return text(strings.TrimSpace(string(t)))
}

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*t = text(data)
	default:
		*t = ""
	}
	return nil
}

// optionalText maps falsy JSON values (null, false, 0, "") to nil. Strings are
// trimmed; numbers and true keep their JSON text.
func optionalText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if isFalsy(raw) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	}
	if raw[0] == '{' || raw[0] == '[' {
		return nil
	}
	s := string(raw)
	return &s
}

// optionalCoordinate accepts a JSON number or numeric string. Zero, absent
// and non-numeric values map to nil.
func optionalCoordinate(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if isFalsy(raw) {
		return nil
	}
	var value float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		value = parsed
	default:
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil
		}
	}
	if value == 0 {
		return nil
	}
	return &value
}

func isFalsy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	switch string(raw) {
	case "null", "false", `""`:
		return true
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == 0 {
		return true
	}
	return false
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
