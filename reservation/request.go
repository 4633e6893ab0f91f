package reservation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Request is an order reservation as submitted by a client or a queue producer.
//
// Fields are pointers so an absent or null field can be told apart from an
// empty string. Payload is opaque and never parsed.
type Request struct {
	SessionID *string `json:"sessionId"`
	Payload   *string `json:"payload"`
}

// New builds a Request from plain values.
func New(sessionID, payload string) Request {
	return Request{SessionID: &sessionID, Payload: &payload}
}

// Kind classifies a validation failure.
type Kind int

const (
	MissingBody Kind = iota + 1
	MissingSessionID
	MissingPayload
)

func (k Kind) String() string {
	switch k {
	case MissingBody:
		return "missing_body"
	case MissingSessionID:
		return "missing_session_id"
	case MissingPayload:
		return "missing_payload"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrMissingBody      = errors.New("order reservation body is missing")
	ErrMissingSessionID = errors.New("order reservation sessionId is missing")
	ErrMissingPayload   = errors.New("order reservation payload is missing")
)

// ValidationError rejects a request before it reaches storage.
type ValidationError struct {
	Kind  Kind
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.sentinel(), e.Cause)
	}
	return e.sentinel().Error()
}

// Is lets errors.Is match the sentinel of the error's kind.
func (e *ValidationError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func (e *ValidationError) sentinel() error {
	switch e.Kind {
	case MissingBody:
		return ErrMissingBody
	case MissingSessionID:
		return ErrMissingSessionID
	case MissingPayload:
		return ErrMissingPayload
	default:
		return errors.New("invalid order reservation")
	}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Decode parses a JSON request body.
//
// An empty body, a JSON null or anything that is not a JSON object is treated
// as a missing body, as is a known field holding a non-string value. Keys are
// case-sensitive: "SessionId" is not "sessionId". Field presence is not
// checked here; see Validate.
func Decode(body []byte) (Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Request{}, &ValidationError{Kind: MissingBody}
	}
	if trimmed[0] != '{' {
		return Request{}, &ValidationError{Kind: MissingBody, Cause: errors.New("body is not a JSON object")}
	}

	// encoding/json folds key case when filling structs; field names here are
	// matched exactly.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Request{}, &ValidationError{Kind: MissingBody, Cause: err}
	}

	var req Request
	if err := decodeField(fields, fieldSessionID, &req.SessionID); err != nil {
		return Request{}, err
	}
	if err := decodeField(fields, fieldPayload, &req.Payload); err != nil {
		return Request{}, err
	}
	return req, nil
}

const (
	fieldSessionID = "sessionId"
	fieldPayload   = "payload"
)

func decodeField(fields map[string]json.RawMessage, name string, dst **string) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Kind: MissingBody, Cause: fmt.Errorf("field %s: %w", name, err)}
	}
	return nil
}

// Validate checks that both fields are present. sessionId must also be non-empty
// since it names the stored object; an empty payload is legal.
func (r Request) Validate() error {
	if r.SessionID == nil || *r.SessionID == "" {
		return &ValidationError{Kind: MissingSessionID}
	}
	if r.Payload == nil {
		return &ValidationError{Kind: MissingPayload}
	}
	return nil
}

// Values returns the dereferenced fields. Call it only after Validate succeeded.
func (r Request) Values() (sessionID, payload string) {
	if r.SessionID != nil {
		sessionID = *r.SessionID
	}
	if r.Payload != nil {
		payload = *r.Payload
	}
	return sessionID, payload
}
