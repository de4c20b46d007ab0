package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pomosync/go/internal/session"
)

// SessionEngine is what the transport needs from the engine
type SessionEngine interface {
	Connect(ctx context.Context, connID string) error
	Join(ctx context.Context, connID, name, task string) error
	UpdateTask(ctx context.Context, connID, task string) error
	Leave(ctx context.Context, connID string) error
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Reset(ctx context.Context) error
	SwitchMode(ctx context.Context, mode string) error
	Snapshot(ctx context.Context) (session.StateSnapshot, error)
}

var errBadRequest = errors.New("bad request")

// handleClientMessage decodes one inbound event and applies it. Rejections are
// reported to this connection only.
func (c *Connection) handleClientMessage(message []byte) {
	var event session.Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.reject(fmt.Errorf("%w: decode message: %v", errBadRequest, err))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("event_type", string(event.Type)).
		Msg("received client message")

	if err := c.dispatch(c.ctx, event); err != nil {
		c.reject(err)
	}
}

func (c *Connection) dispatch(ctx context.Context, event session.Event) error {
	switch event.Type {
	case session.EventTypeJoin:
		var payload session.JoinPayload
		if err := decodeData(event, &payload); err != nil {
			return err
		}
		return c.engine.Join(ctx, c.ID, payload.Name, payload.Task)

	case session.EventTypeUpdateTask:
		var task string
		if err := decodeData(event, &task); err != nil {
			return err
		}
		return c.engine.UpdateTask(ctx, c.ID, task)

	case session.EventTypeStartTimer:
		return c.engine.Start(ctx)

	case session.EventTypePauseTimer:
		return c.engine.Pause(ctx)

	case session.EventTypeResetTimer:
		return c.engine.Reset(ctx)

	case session.EventTypeSwitchMode:
		var mode string
		if err := decodeData(event, &mode); err != nil {
			return err
		}
		return c.engine.SwitchMode(ctx, mode)

	default:
		return fmt.Errorf("%w: unknown event type %q", errBadRequest, event.Type)
	}
}

func decodeData(event session.Event, v interface{}) error {
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", errBadRequest, event.Type)
	}
	if err := json.Unmarshal(event.Data, v); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", errBadRequest, event.Type, err)
	}
	return nil
}

func (c *Connection) reject(err error) {
	var code string
	switch {
	case session.IsValidation(err):
		code = session.ErrorCodeValidation
	case errors.Is(err, errBadRequest):
		code = session.ErrorCodeBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, session.ErrEngineStopped):
		// Connection or engine is going away
		return
	default:
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to apply client message")
		return
	}

	log.Warn().
		Err(err).
		Str("connection_id", c.ID).
		Str("code", code).
		Msg("client message rejected")
	c.Manager.SendTo(c.ID, session.ErrorEvent(code, err))
}
