package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorKind string

const (
	ErrMissingCredential ErrorKind = "MissingCredential"
	ErrTransportFailure  ErrorKind = "TransportFailure"
	ErrChannelFailure    ErrorKind = "ChannelFailure"
	ErrValidation        ErrorKind = "Validation"
	ErrStorage           ErrorKind = "Storage"
)

// MissingCredentialMessage is shown in place of a translation when no API key is configured.
const MissingCredentialMessage = "APIキーが設定されていません"

const translationErrorPrefix = "翻訳エラー: "

type Error struct {
	Kind    ErrorKind
	Message string
	Context map[string]any
	Cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func MissingCredential() *Error {
	return NewError(ErrMissingCredential, MissingCredentialMessage)
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// UserMessage is the text rendered in place of the translation.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case ErrMissingCredential:
		return e.Message
	case ErrTransportFailure:
		if e.Cause != nil {
			return translationErrorPrefix + e.Cause.Error()
		}
		return translationErrorPrefix + e.Message
	default:
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
}

func IsErrorKind(err error, kind ErrorKind) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of a protocol error, or ErrTransportFailure for
// anything else since unknown failures come from the provider call.
func KindOf(err error) ErrorKind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ErrTransportFailure
}

func WrapError(err error, kind ErrorKind, message string) *Error {
	return NewErrorWithCause(kind, message, err)
}

// UserMessage renders any error the way the overlay shows it.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.UserMessage()
	}
	return translationErrorPrefix + err.Error()
}
