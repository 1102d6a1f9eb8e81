package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so the transport layer can pick a
// status code without inspecting error strings.
type Kind int

const (
	KindValidation Kind = iota
	KindDuplicate
	KindExtraction
	KindNormalization
	KindNotFound
	KindPersistence
)

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// classify returns the pipeline error inside err, if there is one.
func classify(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
