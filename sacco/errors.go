package sacco

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var UnauthorizedError = errors.New("unauthorized")
var ForbiddenError = errors.New("forbidden")
var NotFoundError = errors.New("not found")
var UnableToDecodeResponseError = errors.New("unable to decode response")
var MissingAccessTokenError = errors.New("Access token not found in the response.")

// FieldMessages holds the messages the API reported under a single key of an error body.
// Non-field errors (a bare string or list body) use an empty Field.
type FieldMessages struct {
	Field    string
	Messages []string
}

// APIError is any non 2xx response from the API. The body is kept in the order the server
// wrote it so the flattened message reads the same way the server meant it.
type APIError struct {
	StatusCode int
	Fields     []FieldMessages
}

func newAPIError(statusCode int, body []byte) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Fields:     parseErrorBody(body),
	}
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages(), "; ")
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("A sacco api error occurred. Status: %d, Message: %s", e.StatusCode, msg)
}

// Unwrap lets callers test for the auth sentinels with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return UnauthorizedError
	case http.StatusForbidden:
		return ForbiddenError
	case http.StatusNotFound:
		return NotFoundError
	}

	return nil
}

// Messages returns every message in the body, flattened in body order.
func (e *APIError) Messages() []string {
	var out []string
	for _, f := range e.Fields {
		out = append(out, f.Messages...)
	}

	return out
}

// Message joins Messages with newlines, the way an alert shows them.
func (e *APIError) Message() string {
	return strings.Join(e.Messages(), "\n")
}

// Lookup returns the first message reported under field, or "".
func (e *APIError) Lookup(field string) string {
	for _, f := range e.Fields {
		if f.Field == field && len(f.Messages) > 0 {
			return f.Messages[0]
		}
	}

	return ""
}

func parseErrorBody(body []byte) []FieldMessages {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] != '{' {
		var messages []string
		if err := collectMessages(dec, &messages); err != nil || len(messages) == 0 {
			return nil
		}
		return []FieldMessages{{Messages: messages}}
	}

	// opening brace
	if _, err := dec.Token(); err != nil {
		return nil
	}

	var fields []FieldMessages
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return fields
		}

		var messages []string
		if err := collectMessages(dec, &messages); err != nil {
			return fields
		}
		if len(messages) == 0 {
			continue
		}

		name, _ := key.(string)
		fields = append(fields, FieldMessages{Field: name, Messages: messages})
	}

	return fields
}

// collectMessages consumes exactly one JSON value from dec and appends every scalar in it.
func collectMessages(dec *json.Decoder, out *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			for dec.More() {
				// key
				if _, err := dec.Token(); err != nil {
					return err
				}
				if err := collectMessages(dec, out); err != nil {
					return err
				}
			}
		case '[':
			for dec.More() {
				if err := collectMessages(dec, out); err != nil {
					return err
				}
			}
		}
		// closing delimiter
		_, err = dec.Token()
		return err
	case string:
		*out = append(*out, v)
	case json.Number:
		*out = append(*out, v.String())
	case bool:
		*out = append(*out, strconv.FormatBool(v))
	}

	return nil
}
