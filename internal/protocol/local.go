package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Local connects a pipeline to a coordinator living in the same process.
type Local struct {
	handler  Handler
	clientID string

	pushes      <-chan Push
	unsubscribe func()
	closeOnce   sync.Once
}

func NewLocal(handler Handler, clientID string) *Local {
	pushes, unsubscribe := handler.Subscribe(clientID)
	return &Local{
		handler:     handler,
		clientID:    clientID,
		pushes:      pushes,
		unsubscribe: unsubscribe,
	}
}

func (l *Local) RequestTranslate(ctx context.Context, text string) (Ack, error) {
	ack, err := l.handler.RequestTranslate(ctx, l.clientID, text)
	if err != nil {
		return Ack{}, err
	}
	if !ack.Accepted() {
		return ack, NewError(ErrChannelFailure, fmt.Sprintf("unexpected ack status %q", ack.Status))
	}
	return ack, nil
}

func (l *Local) HasAPIKey(ctx context.Context) (bool, error) {
	return l.handler.HasAPIKey(ctx)
}

func (l *Local) Pushes() <-chan Push {
	return l.pushes
}

func (l *Local) Close() error {
	l.closeOnce.Do(l.unsubscribe)
	return nil
}
