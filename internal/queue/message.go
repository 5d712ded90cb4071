// Package queue decodes inbound job messages and consumes them from a
// Redis list.
package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/job"
)

// ErrInvalidMessage is returned when a message body is neither a job
// descriptor nor a push envelope carrying one.
var ErrInvalidMessage = errors.New("invalid job message")

// pushMessage is a Pub/Sub style message: base64 JSON data plus attributes.
// Attribute values are not always strings, so they are decoded lazily.
type pushMessage struct {
	Data       string                     `json:"data"`
	Attributes map[string]json.RawMessage `json:"attributes"`
	MessageID  string                     `json:"messageId,omitempty"`
}

// envelope covers both push delivery ({"message": ...}) and CloudEvent
// delivery ({"data": {"message": ...}}).
type envelope struct {
	Message *pushMessage `json:"message"`
	Data    *struct {
		Message *pushMessage `json:"message"`
	} `json:"data"`
}

func (e envelope) message() *pushMessage {
	if e.Message != nil {
		return e.Message
	}
	if e.Data != nil {
		return e.Data.Message
	}
	return nil
}

// DecodeMessage parses raw as a bare job descriptor or as an envelope and
// validates the result.
func DecodeMessage(raw []byte) (job.Descriptor, error) {
	d, err := Decode(raw)
	if err != nil {
		return job.Descriptor{}, err
	}
	if err := d.Validate(); err != nil {
		return job.Descriptor{}, err
	}
	return d, nil
}

// Decode parses raw without validating it. An envelope's jobId attribute
// fills in a descriptor without one.
func Decode(raw []byte) (job.Descriptor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return job.Descriptor{}, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return job.Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var d job.Descriptor
	msg := env.message()
	if msg == nil {
		if err := json.Unmarshal(raw, &d); err != nil {
			return job.Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return d, nil
	}

	payload, err := decodeData(msg.Data)
	if err != nil {
		return job.Descriptor{}, fmt.Errorf("%w: message data: %w", ErrInvalidMessage, err)
	}
	if err := json.Unmarshal(payload, &d); err != nil {
		return job.Descriptor{}, fmt.Errorf("%w: message data: %w", ErrInvalidMessage, err)
	}
	if d.JobID == "" {
		d.JobID = msg.attribute("jobId")
	}
	return d, nil
}

// attribute returns a string attribute, or "" when absent or not a string.
func (m *pushMessage) attribute(name string) string {
	var s string
	if raw, ok := m.Attributes[name]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func decodeData(data string) ([]byte, error) {
	if data == "" {
		return nil, errors.New("empty data")
	}
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(data)
}
