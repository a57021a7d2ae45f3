// Package protocol is the contract between a caption pipeline and the
// coordinator that talks to the translation provider.
//
// A translate request is acknowledged immediately with StatusProcessing. The
// outcome arrives later as a Push on the requesting client's stream. Every
// push names the caption it belongs to so the pipeline can discard results
// for captions that are no longer on screen.
package protocol

import (
	"context"
	"time"
)

const StatusProcessing = "processing"

type Action string

const (
	ActionTranslate   Action = "translate"
	ActionCheckAPIKey Action = "checkApiKey"
)

type PushKind string

const (
	PushTranslation PushKind = "displayTranslation"
	PushError       PushKind = "translationError"
	PushToggle      PushKind = "toggle"
)

// TranslateRequest is what a pipeline sends for a cache miss.
type TranslateRequest struct {
	Action   Action `json:"action"`
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
}

// Ack only confirms the request was accepted.
type Ack struct {
	Status string `json:"status"`
}

func (a Ack) Accepted() bool {
	return a.Status == StatusProcessing
}

type Push struct {
	Kind           PushKind  `json:"action"`
	OriginalText   string    `json:"originalText,omitempty"`
	TranslatedText string    `json:"translatedText,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	Enabled        *bool     `json:"enabled,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

func TranslationPush(original, translated string) Push {
	return Push{
		Kind:           PushTranslation,
		OriginalText:   original,
		TranslatedText: translated,
		SentAt:         time.Now(),
	}
}

func ErrorPush(original string, kind ErrorKind, message string) Push {
	return Push{
		Kind:         PushError,
		OriginalText: original,
		Error:        message,
		ErrorKind:    kind,
		SentAt:       time.Now(),
	}
}

func TogglePush(enabled bool) Push {
	return Push{
		Kind:    PushToggle,
		Enabled: &enabled,
		SentAt:  time.Now(),
	}
}

// Handler is the coordinator side of the protocol.
type Handler interface {
	RequestTranslate(ctx context.Context, clientID string, text string) (Ack, error)
	HasAPIKey(ctx context.Context) (bool, error)
	Subscribe(clientID string) (<-chan Push, func())
}

// Channel is the pipeline side of the protocol, bound to one client id.
type Channel interface {
	RequestTranslate(ctx context.Context, text string) (Ack, error)
	HasAPIKey(ctx context.Context) (bool, error)
	Pushes() <-chan Push
	Close() error
}
