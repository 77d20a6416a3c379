// Package xwm runs the X event loop: events are pumped off the connection
// and fed to a Model that updates in response.
package xwm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jezek/xgb"
)

// ErrQuit stops the event loop without an error.
var ErrQuit = errors.New("quit")

// Msg contains data from the result of an IO operation. Msgs trigger the
// update function.
type Msg any

type Model interface {
	// Init is the first function that will be called.
	Init(ctx context.Context) error

	// Update is called when a message is received. Use it to inspect
	// messages and, in response, update the model. Return ErrQuit to stop
	// the loop.
	Update(ctx context.Context, msg Msg) error
}

// ReceiveEvents drains the connection into eventC until the connection or
// the context dies.
func ReceiveEvents(ctx context.Context, conn *xgb.Conn, eventC chan<- Msg) {
	for {
		// WaitForEvent either returns an event or an error and never both.
		// If both are nil, the connection is gone.
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			slog.Debug("Connection closed")
			close(eventC)
			return
		}

		if err != nil {
			// An error here is a response to an unchecked request.
			slog.Warn("Received X error", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case eventC <- ev:
		}
	}
}

// HandleEvents feeds events to the model until it quits or fails.
func HandleEvents(ctx context.Context, model Model, eventC <-chan Msg) error {
	if err := model.Init(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-eventC:
			if !ok {
				return nil
			}

			if err := model.Update(ctx, ev); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}
